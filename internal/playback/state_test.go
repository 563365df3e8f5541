package playback_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/replayvis/internal/playback"
)

type counter struct {
	turns int
	err   error
}

func (c counter) MaxTurn(context.Context, string, string) (int, error) {
	return c.turns, c.err
}

var _ = Describe("State", func() {
	var (
		ctx context.Context
		st  *playback.State
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = playback.New()
	})

	Describe("SetCase", func() {
		It("takes the bound from the oracle and rewinds", func() {
			_, err := st.SetCase(ctx, counter{turns: 10}, "in", "out")
			Expect(err).NotTo(HaveOccurred())
			st.Seek(7)

			_, err = st.SetCase(ctx, counter{turns: 4}, "in", "out2")
			Expect(err).NotTo(HaveOccurred())
			Expect(st.MaxTurn()).To(Equal(4))
			Expect(st.Turn()).To(Equal(0))
		})

		It("zeroes the bound when the oracle fails", func() {
			st.SetCase(ctx, counter{turns: 10}, "in", "out")
			st.Seek(5)

			_, err := st.SetCase(ctx, counter{err: errors.New("bad output")}, "in", "garbage")
			Expect(err).To(HaveOccurred())
			Expect(st.MaxTurn()).To(Equal(0))
			Expect(st.Turn()).To(Equal(0))
		})

		It("stops playback first", func() {
			st.SetCase(ctx, counter{turns: 10}, "in", "out")
			Expect(st.Play()).To(Equal(playback.EffectSchedule))

			effect, _ := st.SetCase(ctx, counter{turns: 3}, "in", "out")
			Expect(effect).To(Equal(playback.EffectCancel))
			Expect(st.Playing()).To(BeFalse())
		})
	})

	Describe("Play", func() {
		It("refuses to start without turns", func() {
			Expect(st.Play()).To(Equal(playback.EffectNone))
			Expect(st.Playing()).To(BeFalse())
			Expect(st.Interval()).To(BeZero())
		})

		It("schedules 300000 / maxTurn / speed milliseconds", func() {
			st.SetMaxTurn(100)
			st.SetSpeed(30)
			Expect(st.Play()).To(Equal(playback.EffectSchedule))
			Expect(st.Interval()).To(Equal(100 * time.Millisecond))
		})

		It("is a no-op while already playing", func() {
			st.SetMaxTurn(10)
			st.Play()
			id := st.Timer()
			Expect(st.Play()).To(Equal(playback.EffectNone))
			Expect(st.Timer()).To(Equal(id))
		})

		It("rewinds when started on the last turn", func() {
			st.SetMaxTurn(5)
			st.Seek(5)
			Expect(st.Play()).To(Equal(playback.EffectSchedule))
			Expect(st.Turn()).To(Equal(0))
		})
	})

	Describe("Tick", func() {
		BeforeEach(func() {
			st.SetMaxTurn(3)
			st.Play()
		})

		It("advances one turn per tick and stops on the last turn", func() {
			id := st.Timer()
			Expect(st.Tick(id)).To(Equal(playback.EffectSchedule))
			Expect(st.Tick(id)).To(Equal(playback.EffectSchedule))
			Expect(st.Tick(id)).To(Equal(playback.EffectCancel))
			Expect(st.Turn()).To(Equal(3))
			Expect(st.Playing()).To(BeFalse())
		})

		It("ignores ticks once the last turn is reached", func() {
			id := st.Timer()
			for i := 0; i < 3; i++ {
				st.Tick(id)
			}
			Expect(st.Tick(id)).To(Equal(playback.EffectNone))
			Expect(st.Tick(st.Timer())).To(Equal(playback.EffectNone))
			Expect(st.Turn()).To(Equal(3))
		})

		It("drops ticks from a replaced timer", func() {
			stale := st.Timer()
			st.Pause()
			st.Play()
			Expect(st.Timer()).NotTo(Equal(stale))

			Expect(st.Tick(stale)).To(Equal(playback.EffectNone))
			Expect(st.Turn()).To(Equal(0))
		})
	})

	Describe("Pause", func() {
		It("keeps the current turn", func() {
			st.SetMaxTurn(10)
			st.Play()
			st.Tick(st.Timer())
			Expect(st.Pause()).To(Equal(playback.EffectCancel))
			Expect(st.Turn()).To(Equal(1))
			Expect(st.Pause()).To(Equal(playback.EffectNone))
		})
	})

	Describe("SetSpeed", func() {
		It("clamps to the slider range", func() {
			st.SetSpeed(0)
			Expect(st.Speed()).To(Equal(playback.MinSpeed))
			st.SetSpeed(1000)
			Expect(st.Speed()).To(Equal(playback.MaxSpeed))
		})

		It("does not reschedule a running timer", func() {
			st.SetMaxTurn(100)
			st.SetSpeed(30)
			st.Play()
			id, interval := st.Timer(), st.Interval()

			st.SetSpeed(60)
			Expect(st.Timer()).To(Equal(id))
			Expect(st.Interval()).To(Equal(interval))

			st.Pause()
			st.Play()
			Expect(st.Interval()).To(Equal(50 * time.Millisecond))
		})
	})

	Describe("Seek", func() {
		It("clamps into range", func() {
			st.SetMaxTurn(10)
			st.Seek(-3)
			Expect(st.Turn()).To(Equal(0))
			st.Seek(99)
			Expect(st.Turn()).To(Equal(10))
		})

		It("keeps playing inside the range", func() {
			st.SetMaxTurn(10)
			st.Play()
			Expect(st.Seek(4)).To(Equal(playback.EffectNone))
			Expect(st.Playing()).To(BeTrue())
		})

		It("stops when landing on the last turn", func() {
			st.SetMaxTurn(10)
			st.Play()
			Expect(st.Seek(10)).To(Equal(playback.EffectCancel))
			Expect(st.Playing()).To(BeFalse())
		})
	})
})

var _ = DescribeTable("TickInterval",
	func(maxTurn, speed int, want time.Duration) {
		Expect(playback.TickInterval(maxTurn, speed)).To(Equal(want))
	},
	Entry("zero turns never schedules", 0, 30, time.Duration(0)),
	Entry("zero speed never schedules", 10, 0, time.Duration(0)),
	Entry("one turn at speed one", 1, 1, 300*time.Second),
	Entry("thousand turns at speed 60", 1000, 60, 5*time.Millisecond),
)

// Package viz provides the terminal replay viewer.
//
// The viewer is a Bubble Tea program around one [session.Session]:
//
//   - [Model]: turn slider, score panel and braille thumbnail of the frame
//   - [Canvas]: braille-based pixel canvas the frame is dithered onto
//   - Theme selection with 3 built-in color schemes
//
// Playback ticks arrive as [TickMsg] values carrying the timer id they were
// armed with, so ticks from a stopped or replaced timer are ignored.
//
// # Key Bindings
//
//	Space - Play/Stop
//	←/→   - Step one turn
//	+/-   - Change speed (1..60)
//	S     - Enter a seed
//	O     - Open an output file
//	G     - Export GIF (shift restarts a running export)
//	P     - Export PNG of the current turn
//	?     - Show help overlay
//
// # Exports
//
// GIF exports run on their own goroutines with a copy of the case. Progress
// and completion come back as messages tagged with the job id; messages of
// a superseded job are dropped.
package viz

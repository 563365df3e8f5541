// Package oracle defines the boundary to the deterministic simulation module
// that the viewer replays.
//
// An oracle provides three pure operations:
//
//   - [Generator]: input text for a seed
//   - [TurnCounter]: number of turns described by an (input, output) pair
//   - [Renderer]: SVG, annotation and score for one turn
//
// Two implementations exist. [Wasm] hosts a pre-built WebAssembly module
// with wazero and talks to it over stdin/stdout; package paint ships a
// native sample problem used by default and in tests.
//
// # Thread Safety
//
// Oracles must be safe for concurrent use: the viewer and an export job call
// them independently.
package oracle

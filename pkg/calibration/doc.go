// Package calibration defines the types shared by the battery calibration
// run and its observers:
//
//   - Phase: the step a calibration cycle is in
//   - Status: the view returned by the HTTP API and shown by the CLI and tray
//   - Marker: the file that records a finished calibration
//
// The run itself lives in the daemon package, next to the monitor it
// hands control to once it is done.
package calibration

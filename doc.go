// Package handlegen generates short pattern-shaped identifiers, writes them
// to numbered batch files and scans them for availability against an
// external oracle.
//
// Generation and scanning run concurrently. Producers fill a window of
// batches ahead of the scan cursor; the scanner probes one identifier at a
// time, paced, and records every outcome durably under the state root so
// that an interrupted run resumes where it stopped:
//
//	srv, _ := handlegen.New(cfg)
//	defer srv.Close()
//	go func() { <-sigCh; srv.RequestStop() }()
//	err := srv.Run(ctx)
//
// Pattern success statistics bias later generation towards templates that
// yield available identifiers. See the service sub-packages for details.
package handlegen

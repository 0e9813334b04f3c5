// Package diskbuf implements a disk-backed buffer that decouples a single
// producer from any number of consumers.
//
// A Writer appends bytes to a temporary file. Readers attach at any time,
// before the first write, while writing is in progress or after the writer
// has finished, and each reads the whole file from its own starting offset.
// A reader that catches up with the writer blocks until more data is
// written or the writer is closed; no byte is ever skipped or repeated.
//
// The file grows until the writer is torn down. Release removes it once the
// last attached reader is done; Destroy with an error removes it right away
// and fails every attached reader with that error. Files still open when the
// process exits are removed by the exitcleanup registry, provided the
// program exits through exitcleanup.Exit or calls exitcleanup.RunHooks.
//
// Basic use:
//
//	w := diskbuf.New(ctx, nil)
//	defer w.Release()
//
//	r, err := w.NewReader()
//	if err != nil {
//		return err
//	}
//	go func() {
//		_, err := w.ReadFrom(src)
//		if err != nil {
//			w.Destroy(err)
//			return
//		}
//		w.Close()
//	}()
//	_, err = io.Copy(dst, r)
package diskbuf

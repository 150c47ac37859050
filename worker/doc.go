// Package worker implements the lease client that does the actual cracking.
//
// A Worker loops over:
//
//	discover open job → claim subtask → validate descriptor
//	    → search range while renewing the lease → submit answer or release
//
// The search runs under a context that is cancelled as soon as a renewal is
// rejected, so a worker that lost its lease stops burning CPU on a subtask
// another worker now owns. Errors are caught at the loop boundary, logged and
// followed by a backoff sleep; the loop itself only ends when its context does.
//
// The coordinator can be used in-process or over HTTP:
//
//	client := httpapi.NewClient("http://coordinator:8080", 5*time.Second)
//	reg, _ := client.RegisterWorker(ctx)
//	w, err := worker.New(&cfg, client, reg.WorkerID, worker.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	return w.Run(ctx)
package worker

// Package daemon is the transport adapter for the AdsPower local API.
//
// Every endpoint answers with a JSON envelope carrying a "msg" status
// ("success" or an error text) and a "data" payload. The Client returns
// envelopes as-is and leaves the success/failure decision to callers; only
// transport problems (connection refused, non-2xx, non-JSON body) become
// errors, always of type *ConnectivityError.
//
// The daemon throttles callers that send more than about one request per
// second. Client applies a Pacer before every paced call so business logic
// never sleeps on its own:
//
//	client := daemon.NewClient("http://127.0.0.1:50325", key,
//	    daemon.WithPacer(daemon.NewPacer(time.Second, nil)))
//
//	if err := client.WaitOnline(ctx, daemon.DefaultWaitPolicy()); err != nil {
//	    return err // daemon unreachable
//	}
package daemon

// Package cms implements a cross-memory server: a named, singleton body of
// services that callers reach through two numbered entry points and run
// synchronously on their own goroutine under the server's authority.
//
// A Server owns the local service table, the message queue behind the LOG
// service, the config store behind the CONFIG service, and the callbacks of
// the application built on it. Run publishes the server through a Global
// Area (package area), establishes the entry points and services the main
// loop until a STOP command arrives:
//
//	srv, err := cms.New("MYSERVER", nil)
//	if err != nil {
//	    return err
//	}
//	if err := srv.RegisterService(10, echo, nil, cms.RegisterSpaceSwitch); err != nil {
//	    return err
//	}
//	go srv.Run(ctx)
//
//	rc, err := cms.CallService(ctx, cms.MakeServerName("MYSERVER"), 10, payload)
//
// Every call passes the dispatch gates in a fixed order (parameter list,
// version, service id, authorization, service table entry, linkage) and
// runs the service under a recovery state, so a panicking service yields
// StatusPCServiceAbendDetected instead of taking down the caller.
package cms

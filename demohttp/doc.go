// Package demohttp serves the plain HTTP greeting endpoint that runs next to
// the WebSocket server.
//
// Every request, whatever its method or path, is answered with the body
// "helloword." and a "tm" cookie carrying the response time in Unix
// milliseconds. The request URL is logged with the request ID assigned by
// RequestID.
//
//	logger := slog.Default()
//	srv := demohttp.NewServer(":8080", demohttp.NewHandler(logger))
//	go srv.ListenAndServe()
package demohttp

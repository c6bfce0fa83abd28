/*
Package httpserver runs the network listeners of the attested fetch oracle.

A Server owns three listeners:

 1. The fetch API (ListenAddr, port 3000 by default) with the proxy routes and
    the health endpoints
 2. The attestation listener (AttestationAddr, port 1301 by default) serving
    GET /attestation/raw
 3. The Prometheus metrics server (MetricsAddr)

All API requests are logged through the flashbots httplogger middleware.

# Health Endpoints

  - GET /livez - Always 200 while the process runs
  - GET /readyz - 200 when ready, 503 while draining
  - GET /drain - Mark the server not ready
  - GET /undrain - Mark the server ready again

Shutdown drains first, waiting DrainDuration so load balancers notice, and then
stops the listeners gracefully within GracefulShutdownDuration.

When EnablePprof is set, the Go profiler is mounted under /debug.
*/
package httpserver

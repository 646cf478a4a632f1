// Package apis exposes the speed.cgi telemetry client as a small Go API.
//
// Key entry points:
//   - ClientConfig / DefaultConfig: target address, credentials, trust policy and timeout.
//   - NewClient / (*Client).FetchCounters: one fresh TLS connection per call, one
//     HTTP/1.0 GET with Basic auth, the XML body decoded into cumulative counters.
//   - AuthError / TransientError: the two failure classes. AuthError means the
//     credentials are wrong and polling should stop; TransientError covers every
//     other failure and the caller simply tries again next interval.
//
// Certificate verification is controlled by ClientConfig.InsecureSkipVerify. The
// appliance is a single operator-controlled firewall with a self-signed
// certificate, so the default configuration accepts any certificate; set it to
// false (optionally with RootCAs) to verify the chain.
package apis

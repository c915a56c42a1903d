// Package intercept implements the decision pipeline applied to every
// outbound connection attempt.
//
// For each attempt the pipeline:
//   - rewrites destinations on port 53 to DNS_OVERRIDE_IP (and
//     DNS_OVERRIDE_PORT, if set)
//   - skips all binding when the destination address starts with one of the
//     BIND_EXCLUDE prefixes
//   - otherwise binds the endpoint to BIND_INTERFACE, unless it is already
//     bound there, and then to BIND_SOURCE_IPV4 or BIND_SOURCE_IPV6
//   - calls the real connect primitive with the final destination
//
// Any binding failure stops the attempt before connect is called and is
// reported as ENETUNREACH.
package intercept

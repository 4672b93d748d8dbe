// Package relay contains the UDP broadcast relay loop.
//
// A Relay receives datagrams on a single socket and sends each one, byte for
// byte, to every other peer it has heard from within the expiry window. The
// loop is strictly sequential: receive, record the sender, fan out, sweep
// stale peers. The Relay is the sole owner of its socket and peer table.
package relay

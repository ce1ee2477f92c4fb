package flume

// A feed's authorization signature is its joined id and the token separated
// by a single space. The API routes on exactly this form, so it's derived in
// one place and cached per (feed, token) pair on the client.
func signFeed(joined, token string) string {
	return joined + " " + token
}

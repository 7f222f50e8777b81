// Package ukey2 implements the UKEY2 authenticated key exchange and the
// record layer that runs on top of it.
//
// Two peers exchange three handshake messages (ClientInit, ServerInit,
// ClientFinished), compare a short verification string out of band, and then
// derive a ConnectionContext that seals records with the negotiated next
// protocol:
//
//	init, _ := ukey2.New(ukey2.RoleInitiator, []ukey2.NextProtocol{ukey2.AES256GCMSIV})
//	m1, _ := init.GetNextHandshakeMessage()
//	// send m1, receive m2
//	_ = init.ParseHandshakeMessage(m2)
//	m3, _ := init.GetNextHandshakeMessage()
//	// send m3
//	code, _ := init.GetVerificationString(32)
//	// confirm code with the user
//	_ = init.VerifyHandshake()
//	conn, _ := init.ToConnectionContext()
//
// When ParseHandshakeMessage returns an *AlertError with a non-nil Alert, the
// caller should send that alert to the peer before closing the channel.
package ukey2

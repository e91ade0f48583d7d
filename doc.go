// Package securemsg is a peer-to-peer encrypted messenger over raw TCP.
//
// Each participant owns a 2048-bit RSA key pair. The public half is shared
// out of band as an RSAKeyValue XML document; the private half is stored
// sealed under a passphrase (PBKDF2-HMAC-SHA256 and AES-256-CBC). Messages
// are JSON envelopes encrypted with RSA-OAEP-SHA256 for the recipient and
// sent as a single length-prefixed frame per connection.
//
// Example:
//
//	m, err := securemsg.New(securemsg.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	if !m.AccountExists() {
//	    if err := m.CreateAccount("correct-horse"); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	if err := m.Login("correct-horse"); err != nil {
//	    log.Fatal(err)
//	}
//
//	cancel := m.OnMessageReceived(func(msg securemsg.Message) {
//	    fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Local().Format(time.Kitchen), msg.Sender, msg.Content)
//	})
//	defer cancel()
//
//	if err := m.StartListening(securemsg.DefaultPort); err != nil {
//	    log.Fatal(err)
//	}
//	err = m.SendMessage(ctx, "hello", bobPublicKeyXML, "192.168.1.20", securemsg.DefaultPort)
//
// The account, crypto, transport and messaging packages can be used on
// their own; Messenger wires them together.
package securemsg

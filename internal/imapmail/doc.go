// Package imapmail is an IMAP implementation of mailbox.Gateway for accounts
// that cannot use the Gmail API. It uses go-imap v2 for the protocol and
// go-message for MIME parsing. Trash is a UID MOVE into a configured mailbox.
package imapmail

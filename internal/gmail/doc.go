// Package gmail is the Gmail REST implementation of mailbox.Gateway.
//
// It lists unread message ids, fetches and normalizes full messages, moves
// messages to and from Trash, and sends plain text mail. A 404 from the API
// is reported as mailbox.ErrNotFound.
//
//	client, err := gmail.NewClientForAccount(ctx, tokens, "default")
//	if err != nil {
//	    return err
//	}
//	ids, err := client.ListUnread(ctx, mailbox.DefaultQuery, 15)
package gmail

// Package attachupload fans a message's attachments out to the ticketing
// API concurrently, bounded by a worker semaphore, the same shape the
// teacher uses for parallel per-folder STATUS fetches.
package attachupload

import (
	"context"
	"fmt"
	"sync"

	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/hkdb/srq-mailgate/internal/mailmodel"
	"github.com/hkdb/srq-mailgate/internal/ticketclient"
	"github.com/rs/zerolog"
)

// uploadWorkers bounds how many attachments of a single message are
// uploaded at once, so one huge message can't monopolize every HTTP
// connection to the ticketing API.
const uploadWorkers = 4

// AttachmentAPI is the subset of ticketclient.Client this package calls.
type AttachmentAPI interface {
	UploadAttachment(ctx context.Context, resourceID string, att ticketclient.UploadAttachmentRequest) error
}

// Uploader uploads a message's attachments, and optionally the raw
// message source as an .eml, to a ticket resource.
type Uploader struct {
	client AttachmentAPI
	log    zerolog.Logger
}

func New(client AttachmentAPI) *Uploader {
	return &Uploader{client: client, log: logging.WithComponent("attachupload")}
}

type uploadResult struct {
	fileName string
	err      error
}

// UploadAll uploads every attachment in msg to resourceID, running up to
// uploadWorkers uploads concurrently. joinAttachments and joinOriginalAsEML
// gate independently: when joinAttachments is false, every real
// attachment is skipped, but the raw RFC822 source is still uploaded as
// an additional "<uid>-message.eml" attachment if joinOriginalAsEML is
// set. Every failure is collected and returned together rather than
// aborting the remaining uploads, since a partial attachment set is
// still useful on the ticket.
func (u *Uploader) UploadAll(ctx context.Context, resourceID string, msg *mailmodel.Message, joinAttachments, joinOriginalAsEML bool) error {
	var attachments []ticketclient.UploadAttachmentRequest
	if joinAttachments {
		attachments = make([]ticketclient.UploadAttachmentRequest, 0, len(msg.Attachments)+1)
		for _, a := range msg.Attachments {
			attachments = append(attachments, ticketclient.UploadAttachmentRequest{
				FileName:    a.FileName,
				ContentType: a.ContentType,
				Content:     a.Content,
			})
		}
	}
	if joinOriginalAsEML {
		attachments = append(attachments, ticketclient.UploadAttachmentRequest{
			FileName:    fmt.Sprintf("%d-message.eml", msg.UID),
			ContentType: "message/rfc822",
			Content:     msg.RawEML,
		})
	}
	if len(attachments) == 0 {
		return nil
	}

	sem := make(chan struct{}, uploadWorkers)
	var wg sync.WaitGroup
	results := make([]uploadResult, len(attachments))

	for i, att := range attachments {
		wg.Add(1)
		go func(idx int, a ticketclient.UploadAttachmentRequest) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = uploadResult{fileName: a.FileName, err: ctx.Err()}
				return
			}

			err := u.client.UploadAttachment(ctx, resourceID, a)
			results[idx] = uploadResult{fileName: a.FileName, err: err}
		}(i, att)
	}

	wg.Wait()

	var failures []string
	for _, r := range results {
		if r.err != nil {
			u.log.Warn().Err(r.err).Str("fileName", r.fileName).Str("resource", resourceID).Msg("attachment upload failed")
			failures = append(failures, fmt.Sprintf("%s: %v", r.fileName, r.err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d attachment(s) failed to upload: %v", len(failures), failures)
	}
	return nil
}

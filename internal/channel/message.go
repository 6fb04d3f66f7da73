package channel

import (
	"context"
	"fmt"
	"strings"

	"warelay/internal/domain"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// downloader fetches and decrypts message media.
type downloader interface {
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
}

// attachment is a lazily downloaded media item of an inbound message.
type attachment struct {
	dl       downloader
	msg      whatsmeow.DownloadableMessage
	mimeType string
	filename string
}

func (a *attachment) Download(ctx context.Context) (*domain.Media, error) {
	data, err := a.dl.Download(ctx, a.msg)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", a.mimeType, err)
	}
	return &domain.Media{MimeType: a.mimeType, Filename: a.filename, Data: data}, nil
}

// toMessageReceived translates a library message event into a domain event.
func toMessageReceived(evt *events.Message, dl downloader) domain.MessageReceived {
	msg := domain.MessageReceived{
		ID:   string(evt.Info.ID),
		From: addressFromJID(evt.Info.Chat),
		Body: messageBody(evt.Message),
	}
	if media, mimeType, filename := mediaOf(evt.Message); media != nil {
		msg.HasMedia = true
		msg.Attachment = &attachment{dl: dl, msg: media, mimeType: mimeType, filename: filename}
	}
	return msg
}

// isControlOnly reports whether m carries nothing but protocol traffic:
// reactions, revokes and edits, poll votes or sender-key distribution.
func isControlOnly(m *waE2E.Message) bool {
	if m == nil {
		return true
	}
	c := proto.Clone(m).(*waE2E.Message)
	c.ReactionMessage = nil
	c.EncReactionMessage = nil
	c.ProtocolMessage = nil
	c.PollUpdateMessage = nil
	c.SenderKeyDistributionMessage = nil
	c.FastRatchetKeySenderKeyDistributionMessage = nil
	c.MessageContextInfo = nil
	return proto.Size(c) == 0
}

func documentOf(m *waE2E.Message) *waE2E.DocumentMessage {
	if doc := m.GetDocumentMessage(); doc != nil {
		return doc
	}
	return m.GetDocumentWithCaptionMessage().GetMessage().GetDocumentMessage()
}

func messageBody(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if text := m.GetConversation(); text != "" {
		return text
	}
	if ext := m.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := m.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := m.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := documentOf(m); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

// mediaOf returns the downloadable part of m with its declared type and name.
func mediaOf(m *waE2E.Message) (whatsmeow.DownloadableMessage, string, string) {
	if m == nil {
		return nil, "", ""
	}
	if doc := documentOf(m); doc != nil {
		return doc, doc.GetMimetype(), doc.GetFileName()
	}
	if img := m.GetImageMessage(); img != nil {
		return img, img.GetMimetype(), ""
	}
	if vid := m.GetVideoMessage(); vid != nil {
		return vid, vid.GetMimetype(), ""
	}
	if aud := m.GetAudioMessage(); aud != nil {
		return aud, aud.GetMimetype(), ""
	}
	if stk := m.GetStickerMessage(); stk != nil {
		return stk, stk.GetMimetype(), ""
	}
	return nil, "", ""
}

func mediaTypeFor(mimeType string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return proto.String(s)
}

// buildMediaMessage wraps an uploaded blob in the message kind matching its type.
func buildMediaMessage(media domain.Media, caption string, up whatsmeow.UploadResponse) *waE2E.Message {
	switch mediaTypeFor(media.MimeType) {
	case whatsmeow.MediaImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       optionalString(caption),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	case whatsmeow.MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       optionalString(caption),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	case whatsmeow.MediaAudio:
		// Audio messages have no caption field.
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       optionalString(caption),
			Title:         optionalString(media.Filename),
			FileName:      optionalString(media.Filename),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	}
}

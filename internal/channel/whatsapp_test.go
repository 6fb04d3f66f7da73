package channel

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"warelay/internal/domain"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

type fakeDownloader struct {
	data []byte
	err  error
	got  whatsmeow.DownloadableMessage
}

func (d *fakeDownloader) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	d.got = msg
	return d.data, d.err
}

func userJID(n string) types.JID { return types.NewJID(n, types.DefaultUserServer) }

func inbound(chat types.JID, m *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: chat},
			ID:            "3EB0ABC",
		},
		Message: m,
	}
}

func TestAddressFromJID(t *testing.T) {
	if got := addressFromJID(userJID("5551234567")); got != "5551234567@c.us" {
		t.Errorf("user jid: got %s", got)
	}
	device := types.JID{User: "5551234567", Device: 3, Server: types.DefaultUserServer}
	if got := addressFromJID(device); got != "5551234567@c.us" {
		t.Errorf("device part should be dropped, got %s", got)
	}
	group := types.NewJID("120363025246125486", types.GroupServer)
	if got := addressFromJID(group); got != "120363025246125486@g.us" {
		t.Errorf("group jid: got %s", got)
	}
}

func TestJIDFromAddress(t *testing.T) {
	cases := map[string]types.JID{
		"5551234567@c.us":           userJID("5551234567"),
		"5551234567":                userJID("5551234567"),
		"+5551234567":               userJID("5551234567"),
		"120363@g.us":               types.NewJID("120363", types.GroupServer),
		"120363@g.us@c.us":          types.NewJID("120363", types.GroupServer),
		"5551234567@s.whatsapp.net": userJID("5551234567"),
	}
	for addr, want := range cases {
		got, err := jidFromAddress(addr)
		if err != nil {
			t.Errorf("%s: unexpected error %v", addr, err)
			continue
		}
		if got != want {
			t.Errorf("%s: got %s, want %s", addr, got, want)
		}
	}
}

func TestJIDFromAddress_Empty(t *testing.T) {
	if _, err := jidFromAddress("@c.us"); err == nil {
		t.Error("expected error for empty address")
	}
}

func TestToMessageReceived_Text(t *testing.T) {
	evt := inbound(userJID("5551234567"), &waE2E.Message{Conversation: proto.String("hello")})
	msg := toMessageReceived(evt, &fakeDownloader{})

	if msg.From != "5551234567@c.us" || msg.Body != "hello" || msg.HasMedia || msg.Attachment != nil {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.ID != "3EB0ABC" {
		t.Errorf("expected id 3EB0ABC, got %s", msg.ID)
	}
}

func TestToMessageReceived_ExtendedText(t *testing.T) {
	evt := inbound(userJID("1"), &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted reply")}})
	if got := toMessageReceived(evt, nil).Body; got != "quoted reply" {
		t.Errorf("got %q", got)
	}
}

func TestToMessageReceived_Document(t *testing.T) {
	doc := &waE2E.DocumentMessage{
		Mimetype: proto.String("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
		FileName: proto.String("invitados.xlsx"),
		Caption:  proto.String("lista"),
	}
	dl := &fakeDownloader{data: []byte("xlsx-bytes")}
	msg := toMessageReceived(inbound(userJID("5551234567"), &waE2E.Message{DocumentMessage: doc}), dl)

	if !msg.HasMedia || msg.Attachment == nil {
		t.Fatal("document should carry media")
	}
	if msg.Body != "lista" {
		t.Errorf("caption should be the body, got %q", msg.Body)
	}

	media, err := msg.Attachment.Download(context.Background())
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if media.Filename != "invitados.xlsx" || string(media.Data) != "xlsx-bytes" || !strings.Contains(media.MimeType, "spreadsheet") {
		t.Errorf("unexpected media: %+v", media)
	}
	if dl.got != doc {
		t.Error("downloader should receive the document message")
	}
}

func TestToMessageReceived_DocumentWithCaption(t *testing.T) {
	wrapped := &waE2E.Message{DocumentWithCaptionMessage: &waE2E.FutureProofMessage{
		Message: &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			FileName: proto.String("a.xlsx"),
			Caption:  proto.String("here"),
		}},
	}}
	msg := toMessageReceived(inbound(userJID("1"), wrapped), &fakeDownloader{})
	if !msg.HasMedia || msg.Body != "here" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestAttachment_DownloadError(t *testing.T) {
	img := &waE2E.ImageMessage{Mimetype: proto.String("image/jpeg")}
	msg := toMessageReceived(inbound(userJID("1"), &waE2E.Message{ImageMessage: img}), &fakeDownloader{err: errors.New("gone")})
	if _, err := msg.Attachment.Download(context.Background()); err == nil {
		t.Fatal("expected download error")
	}
}

func TestMediaTypeFor(t *testing.T) {
	cases := map[string]whatsmeow.MediaType{
		"image/png":       whatsmeow.MediaImage,
		"video/mp4":       whatsmeow.MediaVideo,
		"audio/ogg":       whatsmeow.MediaAudio,
		"application/pdf": whatsmeow.MediaDocument,
		"":                whatsmeow.MediaDocument,
	}
	for mime, want := range cases {
		if got := mediaTypeFor(mime); got != want {
			t.Errorf("%q: got %v, want %v", mime, got, want)
		}
	}
}

func TestBuildMediaMessage(t *testing.T) {
	up := whatsmeow.UploadResponse{URL: "https://mmg/x", DirectPath: "/v/x", FileLength: 42}

	doc := buildMediaMessage(domain.Media{MimeType: "application/pdf", Filename: "report.pdf"}, "monthly", up)
	if doc.GetDocumentMessage().GetFileName() != "report.pdf" || doc.GetDocumentMessage().GetCaption() != "monthly" {
		t.Errorf("unexpected document: %v", doc)
	}
	if doc.GetDocumentMessage().GetFileLength() != 42 {
		t.Errorf("file length not carried")
	}

	img := buildMediaMessage(domain.Media{MimeType: "image/jpeg"}, "", up)
	if img.GetImageMessage() == nil {
		t.Fatal("expected image message")
	}
	if img.GetImageMessage().Caption != nil {
		t.Error("empty caption should be omitted")
	}

	if buildMediaMessage(domain.Media{MimeType: "audio/ogg"}, "ignored", up).GetAudioMessage() == nil {
		t.Error("expected audio message")
	}
}

func TestLibraryLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l := newLibraryLogger(base, "warn").Sub("Client")
	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, "shown 2") || !strings.Contains(out, "module=Client") {
		t.Errorf("unexpected output: %s", out)
	}
}

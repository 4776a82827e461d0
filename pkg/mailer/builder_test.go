package mailer_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/emersion/go-message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
)

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, key string) ([]byte, error) {
	b, ok := m[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func fixedBoundary() string { return "boundary_test" }

func decode(t *testing.T, encoded string) []byte {
	t.Helper()
	require.NotContains(t, encoded, "=")
	require.NotContains(t, encoded, "+")
	require.NotContains(t, encoded, "/")
	raw, err := mailer.DecodeRaw(encoded)
	require.NoError(t, err)
	return raw
}

func TestBuilder_Build_SinglePart(t *testing.T) {
	t.Parallel()

	b := mailer.NewBuilder()
	encoded, err := b.Build(context.Background(), mailer.Message{
		To:      "ann@example.com",
		Subject: "Hello Ann",
		HTML:    `<p>Hi <a href="example.com">there</a></p>`,
	})
	require.NoError(t, err)

	raw := decode(t, encoded)
	assert.True(t, bytes.HasPrefix(raw, []byte(
		"To: ann@example.com\r\n"+
			"Subject: Hello Ann\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=utf-8\r\n"+
			"Content-Transfer-Encoding: quoted-printable\r\n\r\n")))
	assert.Contains(t, string(raw), "=3D", "equals signs are escaped")

	entity, err := message.Read(bytes.NewReader(raw))
	require.NoError(t, err)
	body, err := io.ReadAll(entity.Body)
	require.NoError(t, err)

	html := string(body)
	assert.True(t, strings.HasPrefix(html, "<html><head><style>a{color:#1155cc!important;"))
	assert.Contains(t, html, `<body><p>Hi <a href="https://example.com" style="color: #1155cc; text-decoration: none;">there</a></p></body></html>`)
}

func TestBuilder_Build_LongBodyIsWrapped(t *testing.T) {
	t.Parallel()

	raw, err := mailer.NewBuilder().Compose(context.Background(), mailer.Message{
		To:      "ann@example.com",
		Subject: "Long",
		HTML:    "<p>" + strings.Repeat("word ", 200) + "</p>",
	})
	require.NoError(t, err)

	_, body, found := strings.Cut(string(raw), "\r\n\r\n")
	require.True(t, found)
	for line := range strings.SplitSeq(body, "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}
	assert.Contains(t, body, "=\r\n")
}

func TestBuilder_Build_EncodesNonASCIISubject(t *testing.T) {
	t.Parallel()

	raw, err := mailer.NewBuilder().Compose(context.Background(), mailer.Message{
		To:      "ann@example.com",
		Subject: "Привет, Ann",
		HTML:    "hi",
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: =?utf-8?q?")

	entity, err := message.Read(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := entity.Header.Text("Subject")
	require.NoError(t, err)
	assert.Equal(t, "Привет, Ann", subject)
}

func TestBuilder_Build_FoldsSubjectLineBreaks(t *testing.T) {
	t.Parallel()

	raw, err := mailer.NewBuilder().Compose(context.Background(), mailer.Message{
		To:      "ann@example.com",
		Subject: "Hello\r\nBcc: evil@example.com",
		HTML:    "hi",
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: Hello Bcc: evil@example.com\r\n")
	assert.NotContains(t, string(raw), "\r\nBcc:")
}

func TestBuilder_Build_Multipart(t *testing.T) {
	t.Parallel()

	pdf := bytes.Repeat([]byte("%PDF-1.4 binary\x00\x01"), 20)
	b := mailer.NewBuilder(
		mailer.WithBoundary(fixedBoundary),
		mailer.WithFetcher(mapFetcher{"u1/report.pdf": pdf}),
	)

	raw, err := b.Compose(context.Background(), mailer.Message{
		To:      "ann@example.com",
		Subject: "Report",
		HTML:    "<p>See attached</p>",
		Attachments: []mailer.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Key: "u1/report.pdf"},
			{Filename: "notes.txt", ContentType: "text/plain", Content: []byte("preloaded")},
		},
	})
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, "MIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=\"boundary_test\"\r\n")
	assert.Contains(t, s, `Content-Disposition: attachment; filename="report.pdf"`)
	assert.True(t, strings.HasSuffix(s, "--boundary_test--\r\n"))

	entity, err := message.Read(bytes.NewReader(raw))
	require.NoError(t, err)
	mr := entity.MultipartReader()
	require.NotNil(t, mr)

	var parts []*message.Entity
	var bodies [][]byte
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(part.Body)
		require.NoError(t, err)
		parts = append(parts, part)
		bodies = append(bodies, body)
	}
	require.Len(t, parts, 3)

	ct, _, err := parts[0].Header.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "text/html", ct)
	assert.Contains(t, string(bodies[0]), "<p>See attached</p>")

	disp, params, err := parts[1].Header.ContentDisposition()
	require.NoError(t, err)
	assert.Equal(t, "attachment", disp)
	assert.Equal(t, "report.pdf", params["filename"])
	assert.Equal(t, pdf, bodies[1])

	assert.Equal(t, []byte("preloaded"), bodies[2])
}

func TestBuilder_Build_SkipsUnavailableAttachments(t *testing.T) {
	t.Parallel()

	b := mailer.NewBuilder(mailer.WithFetcher(mapFetcher{}))
	raw, err := b.Compose(context.Background(), mailer.Message{
		To:          "ann@example.com",
		Subject:     "Report",
		HTML:        "<p>Hi</p>",
		Attachments: []mailer.Attachment{{Filename: "gone.pdf", Key: "missing"}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Content-Type: text/html; charset=utf-8\r\n")
	assert.NotContains(t, string(raw), "multipart/mixed")
}

func TestBuilder_Build_QuotesFilename(t *testing.T) {
	t.Parallel()

	b := mailer.NewBuilder(mailer.WithBoundary(fixedBoundary))
	raw, err := b.Compose(context.Background(), mailer.Message{
		To:      "ann@example.com",
		Subject: "x",
		HTML:    "x",
		Attachments: []mailer.Attachment{
			{Filename: "my \"best\"\r\nfile.txt", Content: []byte("a")},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `Content-Disposition: attachment; filename="my \"best\"file.txt"`)
	assert.Contains(t, string(raw), "Content-Type: application/octet-stream;")
}

func TestBuilder_Build_InvalidRecipient(t *testing.T) {
	t.Parallel()

	tests := []string{"", "   ", "not-an-address", "ann@example.com\r\nBcc: x@example.com"}
	for _, to := range tests {
		_, err := mailer.NewBuilder().Build(context.Background(), mailer.Message{To: to, Subject: "x", HTML: "x"})
		require.ErrorIs(t, err, mailer.ErrMessageBuild, "to=%q", to)
	}
}

func TestBuilder_Prefetch(t *testing.T) {
	t.Parallel()

	var calls int
	fetcher := mailer.FetcherFunc(func(_ context.Context, key string) ([]byte, error) {
		calls++
		if key == "bad" {
			return nil, errors.New("boom")
		}
		return []byte(key), nil
	})
	b := mailer.NewBuilder(mailer.WithFetcher(fetcher))

	loaded := b.Prefetch(context.Background(), []mailer.Attachment{
		{Filename: "a", Key: "a"},
		{Filename: "bad", Key: "bad"},
		{Filename: "c", Content: []byte("c")},
		{Filename: "nokey"},
	})

	require.Len(t, loaded, 2)
	assert.Equal(t, []byte("a"), loaded[0].Content)
	assert.Equal(t, []byte("c"), loaded[1].Content)
	assert.Equal(t, 2, calls)
	assert.Nil(t, b.Prefetch(context.Background(), nil))
}

func TestEncodeRawRoundTrip(t *testing.T) {
	t.Parallel()

	in := []byte("To: a@b.co\r\n\r\n\xff\xfe??>>")
	out, err := mailer.DecodeRaw(mailer.EncodeRaw(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

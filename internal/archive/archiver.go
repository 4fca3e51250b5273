package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/repository"
	"github.com/weiawesome/wes-support-chat/pkg/log"
	"github.com/weiawesome/wes-support-chat/pkg/storage"
)

const contentTypeJSON = "application/json"

// Transcript is the archived form of a closed session.
type Transcript struct {
	Session    domain.ChatSession `json:"session"`
	Messages   []domain.Message   `json:"messages"`
	ArchivedAt time.Time          `json:"archived_at"`
}

// Archiver writes session transcripts to object storage.
type Archiver struct {
	store    storage.Storage
	messages repository.MessageRepository
	prefix   string
	timeout  time.Duration
	now      func() time.Time
}

func NewArchiver(store storage.Storage, messages repository.MessageRepository, prefix string, timeout time.Duration) *Archiver {
	if prefix == "" {
		prefix = "transcripts"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Archiver{
		store:    store,
		messages: messages,
		prefix:   prefix,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Key returns the object key of a session transcript,
// <prefix>/<yyyy>/<mm>/<sessionID>.json by creation month.
func (a *Archiver) Key(session domain.ChatSession) string {
	created := session.CreatedAt.UTC()
	return path.Join(a.prefix, created.Format("2006"), created.Format("01"), session.ID+".json")
}

// Archive loads the full transcript and uploads it, overwriting an earlier
// upload of the same session.
func (a *Archiver) Archive(ctx context.Context, session domain.ChatSession) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	msgs, err := a.messages.ListAll(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("failed to load transcript: %w", err)
	}

	data, err := json.Marshal(&Transcript{
		Session:    session,
		Messages:   msgs,
		ArchivedAt: a.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	key := a.Key(session)
	if err := a.store.Write(ctx, key, bytes.NewReader(data), int64(len(data)), contentTypeJSON); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}

	l := log.Ctx(ctx)
	l.Info().Str(log.FieldSessionID, session.ID).Str("key", key).Int("messages", len(msgs)).Msg("transcript archived")
	return nil
}

// Load reads an archived transcript back.
func (a *Archiver) Load(ctx context.Context, session domain.ChatSession) (*Transcript, error) {
	r, err := a.store.Read(ctx, a.Key(session))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var t Transcript
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return &t, nil
}

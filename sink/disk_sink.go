package sink

import (
	"context"
	"easy-chat/contract"
	"easy-chat/domain"
	"easy-chat/repositories"
	"log/slog"

	"github.com/abadojack/whatlanggo"
)

var _ contract.EventSink = DiskSink{}

// DiskSink archives every recorded chat event.
// Chat messages are tagged with their detected language.
type DiskSink struct {
	repository repositories.IMessageRepository
	log        *slog.Logger
}

func NewDiskSink(repository repositories.IMessageRepository, log *slog.Logger) DiskSink {
	return DiskSink{repository: repository, log: log}
}

func (d DiskSink) Consume(ctx context.Context, e domain.ChatEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lang := ""
	if e.Kind == domain.KindMessage {
		lang = detectLang(e.Content)
	}
	if err := d.repository.StoreMessage(repositories.FromChatEvent(e, lang)); err != nil {
		return err
	}
	d.log.Debug("Event archived", "id", e.ID, "kind", e.Kind, "lang", lang)
	return nil
}

func detectLang(content string) string {
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

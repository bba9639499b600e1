package media

import (
	"quackscribe/pkg/model"

	tele "gopkg.in/telebot.v4"
)

// Resolve extracts a MediaReference from a message's attached media.
// Priority when several kinds are present: voice > video note > video > audio.
// The ContentID is FileUniqueID, which is stable across re-sends of the same
// bytes; FileID rotates and is only good for downloading.
func Resolve(msg *tele.Message) (model.MediaReference, bool) {
	if msg == nil {
		return model.MediaReference{}, false
	}

	if v := msg.Voice; v != nil {
		return model.MediaReference{
			ContentID: v.UniqueID,
			FileID:    v.FileID,
			Duration:  v.Duration,
			Size:      v.FileSize,
			MIME:      v.MIME,
			Kind:      model.SourceVoice,
		}, true
	}
	if vn := msg.VideoNote; vn != nil {
		return model.MediaReference{
			ContentID: vn.UniqueID,
			FileID:    vn.FileID,
			Duration:  vn.Duration,
			Size:      vn.FileSize,
			MIME:      "video/mp4",
			Kind:      model.SourceVideoNote,
		}, true
	}
	if v := msg.Video; v != nil {
		return model.MediaReference{
			ContentID: v.UniqueID,
			FileID:    v.FileID,
			Duration:  v.Duration,
			Size:      v.FileSize,
			MIME:      v.MIME,
			Kind:      model.SourceVideo,
		}, true
	}
	if a := msg.Audio; a != nil {
		return model.MediaReference{
			ContentID: a.UniqueID,
			FileID:    a.FileID,
			Duration:  a.Duration,
			Size:      a.FileSize,
			MIME:      a.MIME,
			Kind:      model.SourceAudio,
		}, true
	}

	return model.MediaReference{}, false
}

// ResolveTarget resolves media for a command message: the message itself when
// the command arrived as a media caption, otherwise the replied-to message.
func ResolveTarget(msg *tele.Message) (model.MediaReference, bool) {
	if ref, ok := Resolve(msg); ok {
		return ref, ok
	}
	if msg != nil && msg.ReplyTo != nil {
		return Resolve(msg.ReplyTo)
	}
	return model.MediaReference{}, false
}

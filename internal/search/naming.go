package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Aman-CERP/chatsearch/internal/store"
)

// Document field names.
const (
	FieldText      = "text"
	FieldAuthor    = "author"
	FieldTimestamp = "timestamp"
	FieldMessageID = "message_id"
)

// Fields is the schema of every chat index. Only the message text is scored.
var Fields = []store.Field{
	{Name: FieldText, Weight: 5, Type: store.FieldText},
	{Name: FieldAuthor, Weight: 0, Type: store.FieldText},
	{Name: FieldTimestamp, Weight: 0, Type: store.FieldNumeric},
	{Name: FieldMessageID, Weight: 0, Type: store.FieldNumeric},
}

const indexPrefix = "chat_index_"

// IndexName returns the index holding a channel's messages.
func IndexName(channelID int64) string {
	return indexPrefix + strconv.FormatInt(channelID, 10)
}

// ChannelOf parses the channel id back out of an index name.
func ChannelOf(index string) (int64, bool) {
	rest, ok := strings.CutPrefix(index, indexPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// DocID returns the document id of a message.
func DocID(channelID, messageID int64) string {
	return fmt.Sprintf("doc_id_%d_%d", channelID, messageID)
}

// Permalink returns the t.me link to a message. Supergroup ids lose their
// "-100" prefix.
func Permalink(channelID, messageID int64) string {
	id := strconv.FormatInt(channelID, 10)
	if strings.HasPrefix(id, "-100") {
		id = id[4:]
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", id, messageID)
}

// Indexable reports whether a message text should be indexed.
// Empty texts and commands are skipped.
func Indexable(text string) bool {
	return text != "" && !strings.HasPrefix(text, "/")
}

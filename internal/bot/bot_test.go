package bot

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/memo-notes/internal/export"
	"github.com/xaenox/memo-notes/internal/models"
	"github.com/xaenox/memo-notes/internal/storage"
	"github.com/xaenox/memo-notes/internal/summarizer"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testChat = int64(7)
	testUser = int64(42)
)

type recorder struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (r *recorder) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		r.sent = append(r.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (r *recorder) last() tgbotapi.MessageConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return tgbotapi.MessageConfig{}
	}
	return r.sent[len(r.sent)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fixture struct {
	bot     *Bot
	sent    *recorder
	records *storage.MemoryStore
	store   *storage.Engine
	fs      afero.Fs
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	logger := zap.NewNop()
	records := storage.NewMemoryStore()
	store := storage.NewEngine(records, logger)
	fs := afero.NewMemMapFs()
	sent := &recorder{}

	b := NewWithSender(sent, store, summarizer.NewLocal(), export.New(fs, logger), opts, logger)
	b.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	return &fixture{bot: b, sent: sent, records: records, store: store, fs: fs}
}

func message(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: testUser},
		Chat:      &tgbotapi.Chat{ID: testChat},
		Text:      text,
	}
}

func command(text string) *tgbotapi.Message {
	m := message(text)
	name := strings.SplitN(text, " ", 2)[0]
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}}
	return m
}

// send runs one message through the bot and returns the last reply text.
func (f *fixture) send(t *testing.T, m *tgbotapi.Message) string {
	t.Helper()
	f.bot.handleMessage(context.Background(), m)
	return f.sent.last().Text
}

func (f *fixture) roots(t *testing.T) []*models.Folder {
	t.Helper()
	roots, err := f.store.GetRootFolders(context.Background())
	require.NoError(t, err)
	return roots
}

func TestStartAndHelp(t *testing.T) {
	f := newFixture(t, Options{})

	assert.Contains(t, f.send(t, command("/start")), "Welcome to MemoNotes")
	assert.Contains(t, f.send(t, command("/help")), "/newfolder <path>")
	assert.Contains(t, f.send(t, command("/nope")), "Unknown command")
}

func TestNewFolderCreatesPath(t *testing.T) {
	f := newFixture(t, Options{})

	assert.Equal(t, "📁 Work / Projects", f.send(t, command("/newfolder Work/Projects")))
	f.send(t, command("/newfolder work / projects / Q3"))

	roots := f.roots(t)
	require.Len(t, roots, 1)
	assert.Equal(t, "Work", roots[0].Name)
	require.Len(t, roots[0].SubFolders, 1)
	assert.Equal(t, "Projects", roots[0].SubFolders[0].Name)
	require.Len(t, roots[0].SubFolders[0].SubFolders, 1)
	assert.Equal(t, "Q3", roots[0].SubFolders[0].SubFolders[0].Name)

	assert.Equal(t, "📁 Work\n  📁 Projects\n    📁 Q3", f.send(t, command("/folders")))
	assert.Equal(t, "Usage: /newfolder <path>", f.send(t, command("/newfolder")))
}

func TestFoldersWhenEmpty(t *testing.T) {
	f := newFixture(t, Options{})

	assert.Contains(t, f.send(t, command("/folders")), "You don't have any folders yet")
}

func TestNoteCommand(t *testing.T) {
	f := newFixture(t, Options{})

	reply := f.send(t, command("/note Work/Plans | Q3 plan | Ship the importer | then rest"))
	assert.Equal(t, `📝 Saved "Q3 plan" in Work / Plans`, reply)

	roots := f.roots(t)
	require.Len(t, roots, 1)
	plans := roots[0].SubFolders[0]
	require.Len(t, plans.Notes, 1)
	assert.Equal(t, "Q3 plan", plans.Notes[0].Title)
	assert.Equal(t, "Ship the importer | then rest", plans.Notes[0].Content)

	assert.Contains(t, f.send(t, command("/note Work | only title")), "Usage")
	assert.Contains(t, f.send(t, command("/note | title | text")), "name a folder")
}

func TestPlainMessageGoesToInbox(t *testing.T) {
	f := newFixture(t, Options{})

	reply := f.send(t, message("Buy milk\nand eggs"))
	assert.Contains(t, reply, "*Saved to Inbox:* Buy milk")
	assert.Equal(t, tgbotapi.ModeMarkdownV2, f.sent.last().ParseMode)
	assert.Equal(t, 1, f.sent.last().ReplyToMessageID)

	f.send(t, message("Call the bank"))

	roots := f.roots(t)
	require.Len(t, roots, 1)
	assert.Equal(t, InboxFolder, roots[0].Name)
	require.Len(t, roots[0].Notes, 2)
	assert.Equal(t, "Buy milk", roots[0].Notes[0].Title)
	assert.Equal(t, "Buy milk and eggs", roots[0].Notes[0].Summary)
	assert.Equal(t, "Call the bank", roots[0].Notes[1].Title)
}

func TestCaptionIsSaved(t *testing.T) {
	f := newFixture(t, Options{})

	m := message("")
	m.Caption = "Whiteboard from Monday"
	f.send(t, m)

	roots := f.roots(t)
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Notes, 1)
	assert.Equal(t, "Whiteboard from Monday", roots[0].Notes[0].Content)

	assert.Equal(t, "Only text can be saved as a note.", f.send(t, message("   ")))
}

func TestPrivateBotRejectsStrangers(t *testing.T) {
	f := newFixture(t, Options{AllowedUsers: []int64{1}})

	assert.Equal(t, "Sorry, this bot is private.", f.send(t, message("hello")))
	assert.Empty(t, f.roots(t))

	m := message("hello")
	m.From.ID = 1
	f.send(t, m)
	assert.Len(t, f.roots(t), 1)
}

func TestSearch(t *testing.T) {
	f := newFixture(t, Options{})
	f.send(t, command("/note Work | Plan | Ship the importer by Friday"))
	f.send(t, command("/note Home | Groceries | Milk and eggs"))

	reply := f.send(t, command("/search importer"))
	assert.Contains(t, reply, "*Found 1 notes:*")
	assert.Contains(t, reply, "*Plan*")
	assert.Contains(t, reply, "Ship the importer by Friday")
	assert.Equal(t, tgbotapi.ModeMarkdownV2, f.sent.last().ParseMode)

	assert.Contains(t, f.send(t, command("/search nothing-here")), "No notes match")
	assert.Equal(t, "Usage: /search <text>", f.send(t, command("/search")))
}

func TestSummarizeStoresSummary(t *testing.T) {
	f := newFixture(t, Options{})
	f.send(t, command("/note Work | Plan | Ship it"))

	reply := f.send(t, command("/summarize Work"))
	assert.Contains(t, reply, "This folder contains 1 notes")
	assert.Contains(t, f.roots(t)[0].Summary, "This folder contains 1 notes")

	reply = f.send(t, command("/summarize Work | plan"))
	assert.Contains(t, reply, "*Plan*")
	assert.Equal(t, "Ship it", f.roots(t)[0].Notes[0].Summary)

	assert.Equal(t, "I couldn't find that.", f.send(t, command("/summarize Work | missing")))
}

func TestRemoveNoteAndFolder(t *testing.T) {
	f := newFixture(t, Options{})
	f.send(t, command("/note Work/Plans | Plan | Ship it"))
	f.send(t, command("/newfolder Home"))

	assert.Equal(t, `🗑 Deleted "Plan"`, f.send(t, command("/rmnote Work/Plans | plan")))
	assert.Empty(t, f.roots(t)[0].SubFolders[0].Notes)
	assert.Equal(t, "I couldn't find that note.", f.send(t, command("/rmnote Work/Plans | plan")))

	assert.Equal(t, "🗑 Deleted Work", f.send(t, command("/rmfolder Work")))
	roots := f.roots(t)
	require.Len(t, roots, 1)
	assert.Equal(t, "Home", roots[0].Name)

	assert.Equal(t, "I couldn't find that folder.", f.send(t, command("/rmfolder Work")))
}

func TestMoveFolder(t *testing.T) {
	f := newFixture(t, Options{})
	f.send(t, command("/newfolder Work/Projects"))
	f.send(t, command("/newfolder Archive"))

	assert.Equal(t, "📁 Moved Projects", f.send(t, command("/mv Work/Projects | Archive")))
	roots := f.roots(t)
	require.Len(t, roots, 2)
	assert.Empty(t, roots[0].SubFolders)
	require.Len(t, roots[1].SubFolders, 1)
	assert.Equal(t, "Projects", roots[1].SubFolders[0].Name)

	f.send(t, command("/mv Archive/Projects | /"))
	assert.Equal(t, []string{"Work", "Archive", "Projects"}, rootNames(f.roots(t)))

	reply := f.send(t, command("/mv Archive | Archive"))
	assert.True(t, strings.HasPrefix(reply, "⚠️ I can't move the folder"), reply)

	assert.Equal(t, "I couldn't find the destination folder.", f.send(t, command("/mv Work | Nowhere")))
}

func TestMoveNote(t *testing.T) {
	f := newFixture(t, Options{})
	f.send(t, command("/note Work | Plan | Ship it"))
	f.send(t, command("/newfolder Done"))

	assert.Equal(t, `📝 Moved "Plan" to Done`, f.send(t, command("/mvnote Work | Plan | Done")))
	roots := f.roots(t)
	assert.Empty(t, roots[0].Notes)
	require.Len(t, roots[1].Notes, 1)
	assert.Equal(t, "Plan", roots[1].Notes[0].Title)
}

func TestRenameFolder(t *testing.T) {
	f := newFixture(t, Options{})
	f.send(t, command("/newfolder Work/Projects"))

	assert.Equal(t, "📁 Renamed to Side projects", f.send(t, command("/rename Work/Projects | Side projects ")))
	assert.Equal(t, "Side projects", f.roots(t)[0].SubFolders[0].Name)

	reply := f.send(t, command("/rename Work |  "))
	assert.True(t, strings.HasPrefix(reply, "⚠️ I can't rename the folder"), reply)
	assert.Equal(t, "Work", f.roots(t)[0].Name)
}

func TestExport(t *testing.T) {
	f := newFixture(t, Options{ExportDir: "export"})
	f.send(t, command("/note Work | Plan | Ship it"))

	reply := f.send(t, command("/export"))
	assert.Equal(t, "📦 Exported 1 notes in 1 folders to export/20261015-120000", reply)

	var files []string
	err := afero.Walk(f.fs, "export/20261015-120000", func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, p)
		}
		return err
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], ".md"), files[0])
}

func TestStorageFailureIsReported(t *testing.T) {
	f := newFixture(t, Options{})
	f.records.SetFault(func(op, key string) error {
		if op == "put" {
			return errors.New("disk full")
		}
		return nil
	})

	reply := f.send(t, command("/newfolder Work"))
	assert.Equal(t, "⚠️ Sorry, I couldn't create the folder. Please try again.", reply)

	reply = f.send(t, message("remember this"))
	assert.True(t, strings.HasPrefix(reply, "⚠️ Sorry, I couldn't"), reply)

	f.records.SetFault(nil)
	assert.Empty(t, f.roots(t))
}

func TestRunHandlesUpdatesUntilClosed(t *testing.T) {
	f := newFixture(t, Options{})

	updates := make(chan tgbotapi.Update, 3)
	updates <- tgbotapi.Update{Message: message("first")}
	updates <- tgbotapi.Update{}
	updates <- tgbotapi.Update{Message: message("second")}
	close(updates)

	require.NoError(t, f.bot.Run(context.Background(), updates))
	assert.Equal(t, 2, f.sent.count())
	require.Len(t, f.roots(t), 1)
	assert.Len(t, f.roots(t)[0].Notes, 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- f.bot.Run(ctx, make(chan tgbotapi.Update))
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStartNeedsTelegram(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Error(t, f.bot.Start(context.Background()))
}

func rootNames(roots []*models.Folder) []string {
	names := make([]string, 0, len(roots))
	for _, r := range roots {
		names = append(names, r.Name)
	}
	return names
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/memo-notes/internal/export"
	"github.com/xaenox/memo-notes/internal/models"
	"github.com/xaenox/memo-notes/internal/storage"
	"github.com/xaenox/memo-notes/internal/summarizer"
	"github.com/xaenox/memo-notes/internal/textutil"
	"go.uber.org/zap"
)

// InboxFolder receives every plain message sent to the bot.
const InboxFolder = "Inbox"

// Sender delivers messages to Telegram. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Options struct {
	ExportDir    string
	AllowedUsers []int64
}

type Bot struct {
	api        *tgbotapi.BotAPI
	sender     Sender
	storage    storage.Storage
	summarizer summarizer.Summarizer
	exporter   *export.Exporter
	exportDir  string
	allowed    map[int64]struct{}
	logger     *zap.Logger
	now        func() time.Time

	// mu serializes every change to the tree; storage has no locking of its own.
	mu sync.Mutex
	wg sync.WaitGroup
}

func New(token string, store storage.Storage, sum summarizer.Summarizer, exp *export.Exporter, opts Options, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := NewWithSender(api, store, sum, exp, opts, logger)
	b.api = api
	logger.Info("Authorized on Telegram", zap.String("account", api.Self.UserName))
	return b, nil
}

// NewWithSender builds a bot that talks through sender and never polls Telegram itself.
func NewWithSender(sender Sender, store storage.Storage, sum summarizer.Summarizer, exp *export.Exporter, opts Options, logger *zap.Logger) *Bot {
	allowed := make(map[int64]struct{}, len(opts.AllowedUsers))
	for _, id := range opts.AllowedUsers {
		allowed[id] = struct{}{}
	}
	return &Bot{
		sender:     sender,
		storage:    store,
		summarizer: sum,
		exporter:   exp,
		exportDir:  opts.ExportDir,
		allowed:    allowed,
		logger:     logger,
		now:        time.Now,
	}
}

// Start polls Telegram until ctx is canceled.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot was built without a Telegram connection")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()
	return b.Run(ctx, updates)
}

// Run handles updates until the channel closes or ctx is canceled, then
// waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			message := update.Message
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleMessage(ctx, message)
			}()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}
	if len(b.allowed) > 0 {
		if _, ok := b.allowed[message.From.ID]; !ok {
			b.logger.Warn("Rejected message from unknown user", zap.Int64("user_id", message.From.ID))
			b.sendMessage(message.Chat.ID, "Sorry, this bot is private.")
			return
		}
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}
	b.handleInbox(ctx, message)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "folders":
		b.handleFolders(ctx, chatID)
	case "newfolder":
		b.handleNewFolder(ctx, chatID, args)
	case "note":
		b.handleNote(ctx, chatID, args)
	case "search":
		b.handleSearch(ctx, chatID, args)
	case "summarize":
		b.handleSummarize(ctx, chatID, args)
	case "rmfolder":
		b.handleRemoveFolder(ctx, chatID, args)
	case "rmnote":
		b.handleRemoveNote(ctx, chatID, args)
	case "mv":
		b.handleMoveFolder(ctx, chatID, args)
	case "mvnote":
		b.handleMoveNote(ctx, chatID, args)
	case "rename":
		b.handleRename(ctx, chatID, args)
	case "export":
		b.handleExport(ctx, chatID)
	default:
		b.sendMessage(chatID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(chatID int64) {
	welcome := `Welcome to MemoNotes! 📝
I keep your notes in nested folders and can search and summarize them.

Send me any text and I'll file it under Inbox.
Use /help to see all available commands.`

	b.sendMessage(chatID, welcome)
}

func (b *Bot) handleHelp(chatID int64) {
	help := `Available commands:
/folders - Show your folder tree
/newfolder <path> - Create folders, e.g. Work/Projects
/note <path> | <title> | <text> - Save a note
/search <text> - Search titles and note text
/summarize <path> [| <title>] - Summarize a folder or a note
/rmfolder <path> - Delete a folder and everything in it
/rmnote <path> | <title> - Delete a note
/mv <path> | <destination or /> - Move a folder
/mvnote <path> | <title> | <destination> - Move a note
/rename <path> | <new name> - Rename a folder
/export - Export everything as markdown

Paths are folder names separated by /.`

	b.sendMessage(chatID, help)
}

func (b *Bot) handleFolders(ctx context.Context, chatID int64) {
	roots, err := b.storage.GetRootFolders(ctx)
	if err != nil {
		b.fail(chatID, "load your folders", err)
		return
	}
	b.sendMessage(chatID, renderTree(roots))
}

func (b *Bot) handleNewFolder(ctx context.Context, chatID int64, args string) {
	segments := splitPath(args)
	if len(segments) == 0 {
		b.sendMessage(chatID, "Usage: /newfolder <path>")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.ensurePath(ctx, segments); err != nil {
		b.fail(chatID, "create the folder", err)
		return
	}
	b.sendMessage(chatID, "📁 "+strings.Join(segments, " / "))
}

func (b *Bot) handleNote(ctx context.Context, chatID int64, args string) {
	parts := splitArgs(args, 3)
	if len(parts) < 3 || parts[1] == "" {
		b.sendMessage(chatID, "Usage: /note <path> | <title> | <text>")
		return
	}
	segments := splitPath(parts[0])
	if len(segments) == 0 {
		b.sendMessage(chatID, "Please name a folder for the note.")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	folder, err := b.ensurePath(ctx, segments)
	if err != nil {
		b.fail(chatID, "create the folder", err)
		return
	}

	note := &models.Note{Title: parts[1], Content: parts[2]}
	if err := b.storage.SaveNote(ctx, note, folder); err != nil {
		b.fail(chatID, "save your note", err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("📝 Saved %q in %s", note.Title, strings.Join(segments, " / ")))
}

func (b *Bot) handleInbox(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		b.sendMessage(chatID, "Only text can be saved as a note.")
		return
	}

	note := &models.Note{
		Title:   noteTitle(content),
		Content: content,
		Summary: b.summarizer.SummarizeNote(ctx, content),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	inbox, err := b.ensurePath(ctx, []string{InboxFolder})
	if err != nil {
		b.fail(chatID, "open your Inbox", err)
		return
	}
	if err := b.storage.SaveNote(ctx, note, inbox); err != nil {
		b.logger.Error("Failed to save message",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID),
			zap.Int("message_id", message.MessageID))
		b.sendErrorMessage(chatID, "Sorry, I couldn't save your message. Please try again.")
		return
	}

	text := fmt.Sprintf("*Saved to %s:* %s", escapeMarkdown(InboxFolder), escapeMarkdown(note.Title))
	if note.Summary != "" && note.Summary != textutil.StripMarkup(content) {
		text += fmt.Sprintf("\n\n*Summary:* %s", escapeMarkdown(note.Summary))
	}
	b.sendMarkdown(chatID, text, message.MessageID)
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64, query string) {
	if query == "" {
		b.sendMessage(chatID, "Usage: /search <text>")
		return
	}
	results, err := b.storage.SearchNotes(ctx, query)
	if err != nil {
		b.fail(chatID, "search your notes", err)
		return
	}
	b.sendMarkdown(chatID, renderResults(query, results), 0)
}

func (b *Bot) handleSummarize(ctx context.Context, chatID int64, args string) {
	parts := splitArgs(args, 2)
	segments := splitPath(parts[0])
	if len(segments) == 0 {
		b.sendMessage(chatID, "Usage: /summarize <path> [| <title>]")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	roots, err := b.storage.GetRootFolders(ctx)
	if err != nil {
		b.fail(chatID, "load your folders", err)
		return
	}

	var entry models.TreeEntry
	var ok bool
	if len(parts) == 2 && parts[1] != "" {
		entry, ok = resolveNote(roots, segments, parts[1])
	} else {
		entry, ok = resolveFolder(roots, segments)
	}
	if !ok {
		b.sendMessage(chatID, "I couldn't find that.")
		return
	}

	var summary string
	switch entry.Kind {
	case models.EntryNote:
		summary = b.summarizer.SummarizeNote(ctx, entry.Note.Content)
		entry.Note.Summary = summary
		err = b.storage.SaveNote(ctx, entry.Note, entry.Parent)
	case models.EntryFolder:
		summary = b.summarizer.SummarizeFolder(ctx, entry.Folder.Notes)
		entry.Folder.Summary = summary
		err = b.storage.SaveFolder(ctx, entry.Folder, entry.Parent)
	}
	if err != nil {
		// The summary is still worth showing.
		b.logger.Warn("Failed to store summary",
			zap.Error(err),
			zap.String("kind", entry.Kind.String()),
			zap.String("id", entry.ID()))
	}
	b.sendMarkdown(chatID, fmt.Sprintf("*%s*\n%s", escapeMarkdown(entry.Name()), escapeMarkdown(summary)), 0)
}

func (b *Bot) handleRemoveFolder(ctx context.Context, chatID int64, args string) {
	segments := splitPath(args)
	if len(segments) == 0 {
		b.sendMessage(chatID, "Usage: /rmfolder <path>")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.findFolder(ctx, chatID, segments)
	if !ok {
		return
	}
	if err := b.storage.DeleteFolder(ctx, entry.Folder, entry.Parent); err != nil {
		b.fail(chatID, "delete the folder", err)
		return
	}
	b.sendMessage(chatID, "🗑 Deleted "+strings.Join(segments, " / "))
}

func (b *Bot) handleRemoveNote(ctx context.Context, chatID int64, args string) {
	parts := splitArgs(args, 2)
	if len(parts) < 2 || parts[1] == "" {
		b.sendMessage(chatID, "Usage: /rmnote <path> | <title>")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	roots, err := b.storage.GetRootFolders(ctx)
	if err != nil {
		b.fail(chatID, "load your folders", err)
		return
	}
	entry, ok := resolveNote(roots, splitPath(parts[0]), parts[1])
	if !ok {
		b.sendMessage(chatID, "I couldn't find that note.")
		return
	}
	if err := b.storage.DeleteNote(ctx, entry.Note, entry.Parent); err != nil {
		b.fail(chatID, "delete the note", err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("🗑 Deleted %q", entry.Note.Title))
}

func (b *Bot) handleMoveFolder(ctx context.Context, chatID int64, args string) {
	parts := splitArgs(args, 2)
	if len(parts) < 2 {
		b.sendMessage(chatID, "Usage: /mv <path> | <destination or />")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	roots, err := b.storage.GetRootFolders(ctx)
	if err != nil {
		b.fail(chatID, "load your folders", err)
		return
	}
	src, ok := resolveFolder(roots, splitPath(parts[0]))
	if !ok {
		b.sendMessage(chatID, "I couldn't find the folder to move.")
		return
	}
	var to *models.Folder
	if dest := splitPath(parts[1]); len(dest) > 0 {
		entry, ok := resolveFolder(roots, dest)
		if !ok {
			b.sendMessage(chatID, "I couldn't find the destination folder.")
			return
		}
		to = entry.Folder
	}

	if err := b.storage.MoveFolder(ctx, src.Folder, src.Parent, to); err != nil {
		b.fail(chatID, "move the folder", err)
		return
	}
	b.sendMessage(chatID, "📁 Moved "+src.Folder.Name)
}

func (b *Bot) handleMoveNote(ctx context.Context, chatID int64, args string) {
	parts := splitArgs(args, 3)
	if len(parts) < 3 {
		b.sendMessage(chatID, "Usage: /mvnote <path> | <title> | <destination>")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	roots, err := b.storage.GetRootFolders(ctx)
	if err != nil {
		b.fail(chatID, "load your folders", err)
		return
	}
	src, ok := resolveNote(roots, splitPath(parts[0]), parts[1])
	if !ok {
		b.sendMessage(chatID, "I couldn't find that note.")
		return
	}
	dest, ok := resolveFolder(roots, splitPath(parts[2]))
	if !ok {
		b.sendMessage(chatID, "I couldn't find the destination folder.")
		return
	}

	if err := b.storage.MoveNote(ctx, src.Note, src.Parent, dest.Folder); err != nil {
		b.fail(chatID, "move the note", err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("📝 Moved %q to %s", src.Note.Title, dest.Folder.Name))
}

func (b *Bot) handleRename(ctx context.Context, chatID int64, args string) {
	parts := splitArgs(args, 2)
	if len(parts) < 2 {
		b.sendMessage(chatID, "Usage: /rename <path> | <new name>")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.findFolder(ctx, chatID, splitPath(parts[0]))
	if !ok {
		return
	}
	if err := b.storage.RenameFolder(ctx, entry.Folder, entry.Parent, parts[1]); err != nil {
		b.fail(chatID, "rename the folder", err)
		return
	}
	b.sendMessage(chatID, "📁 Renamed to "+entry.Folder.Name)
}

func (b *Bot) handleExport(ctx context.Context, chatID int64) {
	if b.exporter == nil {
		b.sendMessage(chatID, "Export is not configured.")
		return
	}

	roots, err := b.storage.GetRootFolders(ctx)
	if err != nil {
		b.fail(chatID, "load your folders", err)
		return
	}
	dir := path.Join(b.exportDir, b.now().UTC().Format("20060102-150405"))
	stats, err := b.exporter.Export(ctx, dir, roots)
	if err != nil {
		b.fail(chatID, "export your notes", err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("📦 Exported %d notes in %d folders to %s", stats.Notes, stats.Folders, dir))
}

// ensurePath returns the folder named by segments, creating missing folders
// along the way. Callers hold b.mu.
func (b *Bot) ensurePath(ctx context.Context, segments []string) (*models.Folder, error) {
	roots, err := b.storage.GetRootFolders(ctx)
	if err != nil {
		return nil, err
	}

	var parent *models.Folder
	level := roots
	for _, name := range segments {
		folder := childByName(level, name)
		if folder == nil {
			folder = models.NewFolder(name)
			if err := b.storage.SaveFolder(ctx, folder, parent); err != nil {
				return nil, err
			}
			b.logger.Info("Created folder",
				zap.String("folder_id", folder.ID),
				zap.String("name", name))
		}
		parent, level = folder, folder.SubFolders
	}
	return parent, nil
}

func (b *Bot) findFolder(ctx context.Context, chatID int64, segments []string) (models.TreeEntry, bool) {
	roots, err := b.storage.GetRootFolders(ctx)
	if err != nil {
		b.fail(chatID, "load your folders", err)
		return models.TreeEntry{}, false
	}
	entry, ok := resolveFolder(roots, segments)
	if !ok {
		b.sendMessage(chatID, "I couldn't find that folder.")
		return models.TreeEntry{}, false
	}
	return entry, true
}

func (b *Bot) fail(chatID int64, action string, err error) {
	if errors.Is(err, storage.ErrInvalidArgument) {
		b.sendErrorMessage(chatID, fmt.Sprintf("I can't %s: %v", action, err))
		return
	}
	b.logger.Error("Request failed",
		zap.Error(err),
		zap.String("action", action),
		zap.Int64("chat_id", chatID))
	b.sendErrorMessage(chatID, fmt.Sprintf("Sorry, I couldn't %s. Please try again.", action))
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string, replyToID int) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.ReplyToMessageID = replyToID
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

package app

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"podtrack/internal/config"
	"podtrack/internal/domain"
	"podtrack/internal/fuzzy"
	"podtrack/internal/itunes"
	"podtrack/internal/playback"
	"podtrack/internal/podcastindex"
	"podtrack/internal/repository"
	"podtrack/internal/subscriptions"
)

type commandHandler func(context.Context, []string) (CommandResult, error)

type command struct {
	usage   string
	summary string
	handler commandHandler
}

// CommandResult carries the outcome of one executed command. Exactly one of
// the payload fields is set per result.
type CommandResult struct {
	Message       string
	Quit          bool
	SearchResults []domain.SearchResult
	Trending      []domain.TrendingPodcast
	Podcasts      []domain.Podcast
	Episodes      []domain.Episode
}

var (
	ErrNoSubscriptionsToExport = subscriptions.ErrNoSubscriptionsToExport
	ErrNoSubscriptionsInOPML   = subscriptions.ErrNoSubscriptionsInOPML
)

type App struct {
	config        config.Config
	configPath    string
	db            *sql.DB
	httpClient    *http.Client
	itunes        *itunes.Client
	commands      map[string]*command
	store         *repository.Store
	subscriptions *subscriptions.Service
	tracker       *playback.Tracker
}

// Dependencies allows tests and embedders to inject alternate components.
type Dependencies struct {
	HTTPClient *http.Client
	ITunes     *itunes.Client
	Trending   *podcastindex.Client
	Engine     playback.Engine
}

type OPMLImportResult = subscriptions.ImportResult

func New(cfg config.Config, configPath string, db *sql.DB) *App {
	return NewWithDependencies(cfg, configPath, db, Dependencies{})
}

func NewWithDependencies(cfg config.Config, configPath string, db *sql.DB, deps Dependencies) *App {
	httpClient := deps.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.TLSVerify},
		}
		if proxyURL := strings.TrimSpace(cfg.Proxy); proxyURL != "" {
			if parsed, err := url.Parse(proxyURL); err == nil {
				transport.Proxy = http.ProxyURL(parsed)
			}
		}
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second, Transport: transport}
	}

	itunesClient := deps.ITunes
	if itunesClient == nil {
		itunesClient = itunes.NewClient(httpClient, "")
	}

	trendingClient := deps.Trending
	if trendingClient == nil && cfg.PodcastIndexKey != "" && cfg.PodcastIndexSecret != "" {
		trendingClient = podcastindex.NewClient(httpClient, "", cfg.PodcastIndexKey, cfg.PodcastIndexSecret, cfg.UserAgent)
	}

	store := repository.New(db)
	subsSvc := subscriptions.NewService(store, httpClient, itunesClient, trendingClient)

	application := &App{
		config:        cfg,
		configPath:    configPath,
		db:            db,
		httpClient:    httpClient,
		itunes:        itunesClient,
		commands:      make(map[string]*command),
		store:         store,
		subscriptions: subsSvc,
	}
	application.registerCommands()

	if deps.Engine != nil {
		application.tracker = playback.NewTracker(deps.Engine, store,
			playback.WithInterval(time.Duration(cfg.ProgressSaveIntervalSec)*time.Second),
			playback.WithSkip(float64(cfg.SkipSeconds)))
	}

	return application
}

func (a *App) Config() config.Config {
	return a.config
}

// Tracker exposes the playback tracker, nil when no engine is wired.
func (a *App) Tracker() *playback.Tracker {
	return a.tracker
}

func (a *App) CommandNames() []string {
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *App) Close() error {
	if a.tracker != nil {
		a.tracker.Close()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *App) Execute(ctx context.Context, input string) (CommandResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return CommandResult{}, nil
	}

	args, err := shellquote.Split(input)
	if err != nil {
		return CommandResult{}, err
	}
	if len(args) == 0 {
		return CommandResult{}, nil
	}

	cmdName := strings.ToLower(args[0])
	cmd, ok := a.commands[cmdName]
	if !ok {
		return CommandResult{Message: fmt.Sprintf("unknown command: %s", args[0])}, nil
	}

	return cmd.handler(ctx, args[1:])
}

func (a *App) registerCommands() {
	a.registerCommand("config", "config [show]", "View or edit application configuration", a.configCommand)
	a.registerCommand("exit", "exit", "Exit the application", a.exitCommand, "quit")
	a.registerCommand("search", "search <query>", "Search the podcast directory", a.searchCommand, "s")
	a.registerCommand("trending", "trending", "Show trending podcasts", a.trendingCommand)
	a.registerCommand("top", "top [country]", "Show the store chart", a.topCommand)
	a.registerCommand("list", "list [filter]", "List followed podcasts", a.listCommand, "ls")
	a.registerCommand("follow", "follow <track_id>", "Follow a podcast by directory track id", a.followCommand)
	a.registerCommand("unfollow", "unfollow <podcast_id>", "Remove a subscription and its episodes", a.unfollowCommand)
	a.registerCommand("refresh", "refresh <podcast_id>|all", "Re-sync a feed (or every feed)", a.refreshCommand, "r")
	a.registerCommand("episodes", "episodes <podcast_id>", "List a podcast's episodes", a.episodesCommand, "e")
	a.registerCommand("play", "play <guid>", "Load and play an episode", a.playCommand)
	a.registerCommand("pause", "pause", "Pause playback, saving progress", a.pauseCommand)
	a.registerCommand("seek", "seek <seconds>", "Jump to an absolute position", a.seekCommand)
	a.registerCommand("skip", "skip", "Skip forward", a.skipCommand)
	a.registerCommand("back", "back", "Skip backward", a.backCommand)
	a.registerCommand("resume", "resume", "Resume the last played episode", a.resumeCommand)
	a.registerCommand("import", "import <file>", "Import subscriptions from an OPML file", a.importCommand)
	a.registerCommand("export", "export <file>", "Export subscriptions to an OPML file", a.exportCommand)
}

func (a *App) registerCommand(name, usage, summary string, handler commandHandler, aliases ...string) {
	cmd := &command{usage: usage, summary: summary, handler: handler}
	names := append([]string{name}, aliases...)
	for _, alias := range names {
		a.commands[alias] = cmd
	}
}

func (a *App) configCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) == 0 {
		return CommandResult{Message: "Usage: config [show]"}, nil
	}
	switch strings.ToLower(args[0]) {
	case "show":
		redacted := a.config
		if redacted.PodcastIndexSecret != "" {
			redacted.PodcastIndexSecret = "********"
		}
		data, err := yaml.Marshal(redacted)
		if err != nil {
			return CommandResult{}, err
		}
		return CommandResult{Message: string(data)}, nil
	default:
		return a.editConfig(ctx)
	}
}

func (a *App) editConfig(ctx context.Context) (CommandResult, error) {
	updated, err := config.EditInteractive(ctx, a.config)
	if err != nil {
		return CommandResult{}, err
	}
	if err := config.Save(a.configPath, updated); err != nil {
		return CommandResult{}, err
	}
	a.config = updated
	log.Println("configuration updated")
	return CommandResult{Message: "Configuration saved."}, nil
}

func (a *App) exitCommand(_ context.Context, _ []string) (CommandResult, error) {
	return CommandResult{Quit: true}, nil
}

func (a *App) searchCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) == 0 {
		return CommandResult{Message: "Usage: search <query>"}, nil
	}

	term := strings.Join(args, " ")
	results, err := a.subscriptions.Search(ctx, term, a.config.SearchLimit)
	if err != nil {
		return CommandResult{}, err
	}

	// The directory matches loosely; re-rank locally and drop the noise.
	type scored struct {
		result domain.SearchResult
		score  float64
	}
	ranked := make([]scored, 0, len(results))
	for _, r := range results {
		score := fuzzy.Score(r.Title, term)
		if authorScore := fuzzy.Score(r.Author, term) * 0.5; authorScore > score {
			score = authorScore
		}
		if score > 0.3 {
			ranked = append(ranked, scored{result: r, score: score})
		}
	}
	if len(ranked) == 0 {
		return CommandResult{Message: "No podcasts found."}, nil
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	ordered := make([]domain.SearchResult, len(ranked))
	for i, s := range ranked {
		ordered[i] = s.result
	}
	return CommandResult{SearchResults: ordered}, nil
}

func (a *App) trendingCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 0 {
		return CommandResult{Message: "Usage: trending"}, nil
	}

	results, err := a.subscriptions.Trending(ctx, a.config.TrendingCategory, a.config.SearchLimit)
	if err != nil {
		if errors.Is(err, subscriptions.ErrTrendingUnavailable) {
			return CommandResult{Message: "Trending requires PodcastIndex credentials; run 'config' to add them."}, nil
		}
		return CommandResult{}, err
	}
	if len(results) == 0 {
		return CommandResult{Message: "Nothing trending right now."}, nil
	}
	return CommandResult{Trending: results}, nil
}

func (a *App) topCommand(ctx context.Context, args []string) (CommandResult, error) {
	country := a.config.SearchCountry
	if len(args) == 1 {
		country = args[0]
	} else if len(args) > 1 {
		return CommandResult{Message: "Usage: top [country]"}, nil
	}

	results, err := a.subscriptions.Top(ctx, country, a.config.SearchLimit)
	if err != nil {
		return CommandResult{}, err
	}
	if len(results) == 0 {
		return CommandResult{Message: "No chart entries found."}, nil
	}
	return CommandResult{SearchResults: results}, nil
}

func (a *App) listCommand(ctx context.Context, args []string) (CommandResult, error) {
	podcasts, err := a.subscriptions.Subscriptions(ctx)
	if err != nil {
		return CommandResult{}, err
	}
	if len(podcasts) == 0 {
		return CommandResult{Message: "No subscriptions yet."}, nil
	}

	if len(args) > 0 {
		filter := strings.Join(args, " ")
		filtered := make([]domain.Podcast, 0, len(podcasts))
		for _, podcast := range podcasts {
			if fuzzy.Matches(podcast.Title, filter) {
				filtered = append(filtered, podcast)
			}
		}
		if len(filtered) == 0 {
			return CommandResult{Message: fmt.Sprintf("No subscriptions matching '%s'.", filter)}, nil
		}
		podcasts = filtered
	}

	return CommandResult{Podcasts: podcasts}, nil
}

func (a *App) followCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: follow <track_id>"}, nil
	}
	trackID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return CommandResult{Message: "Track id must be a number."}, nil
	}

	followed, err := a.subscriptions.FollowTrack(ctx, trackID)
	if err != nil {
		if errors.Is(err, subscriptions.ErrAlreadySubscribed) {
			return CommandResult{Message: "Already following that podcast."}, nil
		}
		return CommandResult{}, err
	}
	return CommandResult{Message: fmt.Sprintf("Following %s (%d episodes).",
		followed.Podcast.Title, len(followed.Episodes))}, nil
}

func (a *App) unfollowCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: unfollow <podcast_id>"}, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return CommandResult{Message: "Podcast id must be a number."}, nil
	}

	removed, err := a.subscriptions.Unfollow(ctx, id)
	if err != nil {
		return CommandResult{}, err
	}
	if !removed {
		return CommandResult{Message: "No subscription found for that podcast."}, nil
	}
	return CommandResult{Message: "Subscription removed."}, nil
}

func (a *App) refreshCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: refresh <podcast_id>|all"}, nil
	}

	if strings.EqualFold(args[0], "all") {
		result, err := a.subscriptions.RefreshAll(ctx)
		if err != nil {
			return CommandResult{}, err
		}
		msg := fmt.Sprintf("Refreshed %d podcasts", result.Refreshed)
		if len(result.Errors) > 0 {
			msg += fmt.Sprintf(", %d failed", len(result.Errors))
		}
		return CommandResult{Message: msg + "."}, nil
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return CommandResult{Message: "Podcast id must be a number."}, nil
	}

	snapshot, err := a.subscriptions.Refresh(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return CommandResult{Message: "No podcast with that id."}, nil
		}
		// Stale rows are still worth showing next to the failure.
		if len(snapshot.Episodes) > 0 {
			return CommandResult{
				Message:  fmt.Sprintf("Refresh failed (%v); showing cached episodes.", err),
				Episodes: snapshot.Episodes,
			}, nil
		}
		return CommandResult{}, err
	}
	return CommandResult{
		Message:  fmt.Sprintf("%s: %d episodes.", snapshot.Podcast.Title, len(snapshot.Episodes)),
		Episodes: snapshot.Episodes,
	}, nil
}

func (a *App) episodesCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: episodes <podcast_id>"}, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return CommandResult{Message: "Podcast id must be a number."}, nil
	}

	episodes, err := a.subscriptions.Episodes(ctx, id)
	if err != nil {
		return CommandResult{}, err
	}
	if len(episodes) == 0 {
		return CommandResult{Message: "No episodes recorded yet."}, nil
	}
	return CommandResult{Episodes: episodes}, nil
}

func (a *App) playCommand(ctx context.Context, args []string) (CommandResult, error) {
	if a.tracker == nil {
		return CommandResult{Message: "No media engine available."}, nil
	}
	if len(args) != 1 {
		return CommandResult{Message: "Usage: play <guid>"}, nil
	}

	episode, err := a.store.GetEpisode(ctx, args[0])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return CommandResult{Message: "Episode not found."}, nil
		}
		return CommandResult{}, err
	}

	if err := a.tracker.Load(episode); err != nil {
		return CommandResult{}, err
	}
	if err := a.tracker.Play(); err != nil {
		return CommandResult{}, err
	}
	return CommandResult{Message: fmt.Sprintf("Playing %s.", episode.Title)}, nil
}

func (a *App) pauseCommand(_ context.Context, _ []string) (CommandResult, error) {
	if a.tracker == nil {
		return CommandResult{Message: "No media engine available."}, nil
	}
	if err := a.tracker.Pause(); err != nil {
		if errors.Is(err, playback.ErrNothingLoaded) {
			return CommandResult{Message: "Nothing is playing."}, nil
		}
		return CommandResult{}, err
	}
	return CommandResult{Message: "Paused."}, nil
}

func (a *App) seekCommand(_ context.Context, args []string) (CommandResult, error) {
	if a.tracker == nil {
		return CommandResult{Message: "No media engine available."}, nil
	}
	if len(args) != 1 {
		return CommandResult{Message: "Usage: seek <seconds>"}, nil
	}
	seconds, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return CommandResult{Message: "Seek position must be a number of seconds."}, nil
	}
	if err := a.tracker.SeekTo(seconds); err != nil {
		if errors.Is(err, playback.ErrNothingLoaded) {
			return CommandResult{Message: "Nothing is loaded."}, nil
		}
		return CommandResult{}, err
	}
	return CommandResult{Message: "Seeked."}, nil
}

func (a *App) skipCommand(_ context.Context, _ []string) (CommandResult, error) {
	if a.tracker == nil {
		return CommandResult{Message: "No media engine available."}, nil
	}
	if err := a.tracker.SkipForward(); err != nil {
		if errors.Is(err, playback.ErrNothingLoaded) {
			return CommandResult{Message: "Nothing is loaded."}, nil
		}
		return CommandResult{}, err
	}
	return CommandResult{Message: "Skipped forward."}, nil
}

func (a *App) backCommand(_ context.Context, _ []string) (CommandResult, error) {
	if a.tracker == nil {
		return CommandResult{Message: "No media engine available."}, nil
	}
	if err := a.tracker.SkipBack(); err != nil {
		if errors.Is(err, playback.ErrNothingLoaded) {
			return CommandResult{Message: "Nothing is loaded."}, nil
		}
		return CommandResult{}, err
	}
	return CommandResult{Message: "Skipped back."}, nil
}

func (a *App) resumeCommand(ctx context.Context, args []string) (CommandResult, error) {
	if a.tracker == nil {
		return CommandResult{Message: "No media engine available."}, nil
	}
	if len(args) != 0 {
		return CommandResult{Message: "Usage: resume"}, nil
	}

	episode, err := a.tracker.ResumeLast(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return CommandResult{Message: "Nothing has been played yet."}, nil
		}
		return CommandResult{}, err
	}
	return CommandResult{Message: fmt.Sprintf("Resuming %s at %.0fs.", episode.Title, episode.Progress)}, nil
}

func (a *App) exportCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: export <file>"}, nil
	}
	count, err := a.ExportOPML(ctx, args[0])
	if err != nil {
		return CommandResult{}, err
	}
	return CommandResult{Message: fmt.Sprintf("Exported %d subscriptions.", count)}, nil
}

func (a *App) importCommand(ctx context.Context, args []string) (CommandResult, error) {
	if len(args) != 1 {
		return CommandResult{Message: "Usage: import <file>"}, nil
	}
	result, err := a.ImportOPML(ctx, args[0])
	if err != nil {
		return CommandResult{}, err
	}
	msg := fmt.Sprintf("Imported %d subscriptions", result.Imported)
	if result.Skipped > 0 {
		msg += fmt.Sprintf(", skipped %d", result.Skipped)
	}
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf(", %d errors", len(result.Errors))
	}
	return CommandResult{Message: msg}, nil
}

func (a *App) ExportOPML(ctx context.Context, filePath string) (int, error) {
	return a.subscriptions.ExportOPML(ctx, filePath)
}

func (a *App) ImportOPML(ctx context.Context, filePath string) (OPMLImportResult, error) {
	return a.subscriptions.ImportOPML(ctx, filePath)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sibusisongondo/Tdone/internal/util"
	"github.com/Sibusisongondo/Tdone/internal/viewer"
	"github.com/Sibusisongondo/Tdone/pkg/domain"
	"github.com/Sibusisongondo/Tdone/pkg/pdfdoc"
	"github.com/Sibusisongondo/Tdone/pkg/storage"
	"github.com/Sibusisongondo/Tdone/pkg/store"
)

const (
	defaultPresignExpiry  = 15 * time.Minute
	defaultMaxUploadBytes = 50 << 20
	defaultMaxCoverBytes  = 5 << 20
	cleanupTimeout        = 10 * time.Second
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store   store.Store
	Objects storage.ObjectStore
	// ViewerStates is optional; without it reading positions are not remembered.
	ViewerStates   store.ViewerStateStore
	Categories     []string
	MaxUploadBytes int64
	MaxCoverBytes  int64
	PresignExpiry  time.Duration
	PublicBaseURL  string
	// Now defaults to time.Now.
	Now func() time.Time
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	viewerStates   store.ViewerStateStore
	categories     []string
	maxUploadBytes int64
	maxCoverBytes  int64
	presignExpiry  time.Duration
	publicBaseURL  string
	now            func() time.Time
}

// FileInput is one uploaded part. multipart.File satisfies Content.
type FileInput struct {
	Name    string
	Size    int64
	Content io.ReaderAt
}

// UploadInput carries the form fields of a new magazine.
type UploadInput struct {
	Title            string
	Description      string
	Category         string
	IsDownloadable   bool
	IsReadableOnline bool
	File             *FileInput
	Cover            *FileInput
}

// ReadRequest holds the optional viewer position of a read request.
type ReadRequest struct {
	Page  *int
	Scale *float64
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("metadata store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	categories := normalizeCategories(cfg.Categories)
	if len(categories) == 0 {
		categories = slices.Clone(domain.DefaultCategories)
	}
	a := &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		viewerStates:   cfg.ViewerStates,
		categories:     categories,
		maxUploadBytes: cfg.MaxUploadBytes,
		maxCoverBytes:  cfg.MaxCoverBytes,
		presignExpiry:  cfg.PresignExpiry,
		publicBaseURL:  strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		now:            cfg.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = defaultMaxUploadBytes
	}
	if a.maxCoverBytes <= 0 {
		a.maxCoverBytes = defaultMaxCoverBytes
	}
	if a.presignExpiry <= 0 {
		a.presignExpiry = defaultPresignExpiry
	}
	return a, nil
}

// Categories returns the categories an upload may use.
func (a *App) Categories() []string {
	return slices.Clone(a.categories)
}

// MaxUploadBytes is the largest accepted PDF.
func (a *App) MaxUploadBytes() int64 { return a.maxUploadBytes }

// MaxCoverBytes is the largest accepted cover image.
func (a *App) MaxCoverBytes() int64 { return a.maxCoverBytes }

// UploadMagazine validates the input, stores the PDF and cover, then records the
// magazine. Nothing is written unless every check passes.
func (a *App) UploadMagazine(ctx context.Context, owner domain.Identity, in UploadInput) (domain.Magazine, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" {
		return domain.Magazine{}, ErrTitleRequired
	}
	if description == "" {
		return domain.Magazine{}, ErrDescriptionRequired
	}
	category, err := a.resolveCategory(in.Category)
	if err != nil {
		return domain.Magazine{}, err
	}
	doc, err := a.validateFile(in.File)
	if err != nil {
		return domain.Magazine{}, err
	}
	coverMIME, coverExt, err := a.validateCover(in.Cover)
	if err != nil {
		return domain.Magazine{}, err
	}

	ownerSegment := sanitizeFilename(owner.UserID)
	if ownerSegment == "" {
		ownerSegment = "anonymous"
	}
	mag := domain.Magazine{
		ID:               util.NewID(),
		UserID:           owner.UserID,
		Title:            title,
		Description:      description,
		Category:         category,
		FileName:         filepath.Base(strings.TrimSpace(in.File.Name)),
		FileSize:         in.File.Size,
		FileKey:          path.Join("magazines", ownerSegment, util.NewShortID()+".pdf"),
		PageCount:        doc.Pages,
		IsDownloadable:   in.IsDownloadable,
		IsReadableOnline: in.IsReadableOnline,
		ArtistName:       owner.ArtistName,
		CreatedAt:        a.now().UTC(),
	}

	var written []string
	fail := func(err error) (domain.Magazine, error) {
		a.removeObjects(ctx, written...)
		return domain.Magazine{}, err
	}
	if err := a.objects.Put(ctx, mag.FileKey, io.NewSectionReader(in.File.Content, 0, in.File.Size), in.File.Size, pdfdoc.MIMEType); err != nil {
		return fail(fmt.Errorf("save file: %w", err))
	}
	written = append(written, mag.FileKey)
	if coverMIME != "" {
		mag.CoverKey = path.Join("covers", ownerSegment, util.NewShortID()+coverExt)
		if err := a.objects.Put(ctx, mag.CoverKey, io.NewSectionReader(in.Cover.Content, 0, in.Cover.Size), in.Cover.Size, coverMIME); err != nil {
			return fail(fmt.Errorf("save cover: %w", err))
		}
		written = append(written, mag.CoverKey)
	}
	if err := a.store.SaveMagazine(ctx, mag); err != nil {
		return fail(fmt.Errorf("save magazine: %w", err))
	}
	util.LoggerFromContext(ctx).Info("magazine uploaded",
		"magazine_id", mag.ID, "user_id", mag.UserID, "pages", mag.PageCount, "size", mag.FileSize)
	return a.decorate(ctx, mag, true)
}

// ListMagazines returns public magazines with cover URLs.
func (a *App) ListMagazines(ctx context.Context, filter store.MagazineFilter) ([]domain.Magazine, error) {
	filter.Category = strings.TrimSpace(filter.Category)
	mags, err := a.store.ListMagazines(ctx, filter)
	if err != nil {
		return nil, err
	}
	return a.decorateAll(ctx, mags, false)
}

// ListOwnMagazines returns the caller's magazines with file URLs, for the dashboard.
func (a *App) ListOwnMagazines(ctx context.Context, owner domain.Identity, limit, offset int) ([]domain.Magazine, error) {
	mags, err := a.store.ListMagazines(ctx, store.MagazineFilter{UserID: owner.UserID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return a.decorateAll(ctx, mags, true)
}

// GetMagazine returns public metadata for one magazine.
func (a *App) GetMagazine(ctx context.Context, id string) (domain.Magazine, error) {
	mag, err := a.lookup(ctx, id)
	if err != nil {
		return domain.Magazine{}, err
	}
	return a.decorate(ctx, mag, false)
}

// OpenReader returns what a viewer needs to render the magazine. An authenticated
// reader resumes the saved position unless the request names one. Opening starts a
// new viewing session, so the retry budget is restored.
func (a *App) OpenReader(ctx context.Context, reader *domain.Identity, id string, req ReadRequest) (domain.Reading, error) {
	mag, err := a.lookup(ctx, id)
	if err != nil {
		return domain.Reading{}, err
	}
	if !mag.IsReadableOnline {
		return domain.Reading{}, ErrNotReadableOnline
	}
	state, err := a.loadViewerState(ctx, reader, mag)
	if err != nil {
		return domain.Reading{}, err
	}
	dirty := req.Page != nil || req.Scale != nil || state.Retries > 0
	state = state.Reopen()
	if req.Page != nil {
		state.Page = *req.Page
	}
	if req.Scale != nil {
		state.Scale = *req.Scale
	}
	state = state.Normalize()
	if dirty {
		if err := a.saveViewerState(ctx, reader, mag.ID, state); err != nil {
			return domain.Reading{}, err
		}
	}
	return a.reading(ctx, mag, state)
}

// ApplyViewerAction moves the reader's viewer and remembers the result.
func (a *App) ApplyViewerAction(ctx context.Context, reader domain.Identity, id, rawAction string, page int) (domain.Reading, error) {
	action, err := viewer.ParseAction(rawAction)
	if err != nil {
		return domain.Reading{}, err
	}
	mag, err := a.lookup(ctx, id)
	if err != nil {
		return domain.Reading{}, err
	}
	if !mag.IsReadableOnline {
		return domain.Reading{}, ErrNotReadableOnline
	}
	state, err := a.loadViewerState(ctx, &reader, mag)
	if err != nil {
		return domain.Reading{}, err
	}
	next, err := state.Apply(action, page)
	if err != nil {
		return domain.Reading{}, err
	}
	if err := a.saveViewerState(ctx, &reader, mag.ID, next); err != nil {
		return domain.Reading{}, err
	}
	return a.reading(ctx, mag, next)
}

// DownloadURL returns a pre-signed URL that saves the PDF under its original name.
func (a *App) DownloadURL(ctx context.Context, id string) (string, string, error) {
	mag, err := a.lookup(ctx, id)
	if err != nil {
		return "", "", err
	}
	if !mag.IsDownloadable {
		return "", "", ErrNotDownloadable
	}
	if strings.TrimSpace(mag.FileKey) == "" {
		return "", "", fmt.Errorf("storage key missing for magazine %s", mag.ID)
	}
	link, err := a.objects.PresignGet(ctx, mag.FileKey, a.presignExpiry, mag.FileName)
	if err != nil {
		return "", "", err
	}
	return link, mag.FileName, nil
}

// DeleteMagazine removes the row and its objects together. When an object cannot
// be removed the row is kept and the error is returned.
func (a *App) DeleteMagazine(ctx context.Context, caller domain.Identity, id string) error {
	mag, err := a.lookup(ctx, id)
	if err != nil {
		return err
	}
	if mag.UserID != caller.UserID {
		return ErrForbidden
	}
	err = a.store.DeleteMagazine(ctx, mag.ID, func() error {
		for _, key := range []string{mag.FileKey, mag.CoverKey} {
			if key == "" {
				continue
			}
			if err := a.objects.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete object %s: %w", key, err)
			}
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	util.LoggerFromContext(ctx).Info("magazine deleted", "magazine_id", mag.ID, "user_id", caller.UserID)
	return nil
}

// GetArtist returns an artist's profile and magazines. featuredID selects one of
// them; an id that is not the artist's leaves Featured nil.
func (a *App) GetArtist(ctx context.Context, artistID, featuredID string) (domain.ArtistPage, error) {
	artistID = strings.TrimSpace(artistID)
	if artistID == "" {
		return domain.ArtistPage{}, ErrArtistNotFound
	}
	var (
		profile domain.Profile
		found   bool
		mags    []domain.Magazine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, found, err = a.store.GetProfile(gctx, artistID)
		return err
	})
	g.Go(func() error {
		var err error
		mags, err = a.store.ListMagazines(gctx, store.MagazineFilter{UserID: artistID, Limit: store.MaxListLimit})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ArtistPage{}, err
	}
	if !found {
		return domain.ArtistPage{}, ErrArtistNotFound
	}
	mags, err := a.decorateAll(ctx, mags, false)
	if err != nil {
		return domain.ArtistPage{}, err
	}
	page := domain.ArtistPage{Artist: profile, Magazines: mags}
	if featuredID = strings.TrimSpace(featuredID); featuredID != "" {
		for i := range mags {
			if mags[i].ID == featuredID {
				featured := mags[i]
				page.Featured = &featured
				break
			}
		}
	}
	return page, nil
}

// Stats returns landing page counters.
func (a *App) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.TotalMagazines, err = a.store.CountMagazines(gctx, store.CountFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		stats.RegisteredUsers, err = a.store.CountProfiles(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.TotalCategories, err = a.store.CountCategories(gctx, store.CountFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// DashboardStats counts the owner's magazines, those created since the start of
// the current UTC calendar month, and the distinct categories they use.
func (a *App) DashboardStats(ctx context.Context, owner domain.Identity) (domain.DashboardStats, error) {
	now := a.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var stats domain.DashboardStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.TotalMagazines, err = a.store.CountMagazines(gctx, store.CountFilter{UserID: owner.UserID})
		return err
	})
	g.Go(func() error {
		var err error
		stats.ThisMonth, err = a.store.CountMagazines(gctx, store.CountFilter{UserID: owner.UserID, CreatedSince: monthStart})
		return err
	})
	g.Go(func() error {
		var err error
		stats.Categories, err = a.store.CountCategories(gctx, store.CountFilter{UserID: owner.UserID})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}

// ShareLink returns the public artist page URL that features the magazine.
func (a *App) ShareLink(ctx context.Context, id string) (string, error) {
	mag, err := a.lookup(ctx, id)
	if err != nil {
		return "", err
	}
	return a.publicBaseURL + "/artist/" + url.PathEscape(mag.UserID) + "/magazine/" + url.PathEscape(mag.ID), nil
}

// EnsureProfile creates the caller's artist profile on first sight and returns it.
func (a *App) EnsureProfile(ctx context.Context, ident domain.Identity) (domain.Profile, error) {
	if strings.TrimSpace(ident.UserID) == "" {
		return domain.Profile{}, errors.New("identity without user id")
	}
	return a.store.EnsureProfile(ctx, domain.Profile{
		ID:         ident.UserID,
		ArtistName: artistNameFor(ident),
		FullName:   ident.FullName,
	})
}

func (a *App) lookup(ctx context.Context, id string) (domain.Magazine, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Magazine{}, ErrNotFound
	}
	mag, ok, err := a.store.GetMagazine(ctx, id)
	if err != nil {
		return domain.Magazine{}, err
	}
	if !ok {
		return domain.Magazine{}, ErrNotFound
	}
	return mag, nil
}

func (a *App) reading(ctx context.Context, mag domain.Magazine, state viewer.State) (domain.Reading, error) {
	mag, err := a.decorate(ctx, mag, true)
	if err != nil {
		return domain.Reading{}, err
	}
	return domain.Reading{Magazine: mag, FileURL: mag.FileURL, Viewer: state.View()}, nil
}

func (a *App) loadViewerState(ctx context.Context, reader *domain.Identity, mag domain.Magazine) (viewer.State, error) {
	state := viewer.New(mag.PageCount)
	if reader == nil || a.viewerStates == nil {
		return state, nil
	}
	saved, ok, err := a.viewerStates.LoadViewerState(ctx, reader.UserID, mag.ID)
	if err != nil {
		return viewer.State{}, fmt.Errorf("load viewer state: %w", err)
	}
	if !ok {
		return state, nil
	}
	saved.NumPages = mag.PageCount
	return saved.Normalize(), nil
}

func (a *App) saveViewerState(ctx context.Context, reader *domain.Identity, magazineID string, state viewer.State) error {
	if reader == nil || a.viewerStates == nil {
		return nil
	}
	if err := a.viewerStates.SaveViewerState(ctx, reader.UserID, magazineID, state); err != nil {
		return fmt.Errorf("save viewer state: %w", err)
	}
	return nil
}

func (a *App) decorateAll(ctx context.Context, mags []domain.Magazine, withFile bool) ([]domain.Magazine, error) {
	out := make([]domain.Magazine, 0, len(mags))
	for _, m := range mags {
		d, err := a.decorate(ctx, m, withFile)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (a *App) decorate(ctx context.Context, mag domain.Magazine, withFile bool) (domain.Magazine, error) {
	if mag.CoverKey != "" {
		link, err := a.objects.PresignGet(ctx, mag.CoverKey, a.presignExpiry, "")
		if err != nil {
			return domain.Magazine{}, fmt.Errorf("presign cover: %w", err)
		}
		mag.CoverImageURL = link
	}
	if withFile && mag.FileKey != "" {
		link, err := a.objects.PresignGet(ctx, mag.FileKey, a.presignExpiry, "")
		if err != nil {
			return domain.Magazine{}, fmt.Errorf("presign file: %w", err)
		}
		mag.FileURL = link
	}
	return mag, nil
}

// removeObjects is best-effort; it runs even when ctx is already cancelled.
func (a *App) removeObjects(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, key := range keys {
		if err := a.objects.Delete(cctx, key); err != nil {
			util.LoggerFromContext(ctx).Warn("orphaned object left behind", "key", key, "err", err)
		}
	}
}

func (a *App) resolveCategory(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrCategoryRequired
	}
	for _, c := range a.categories {
		if strings.EqualFold(c, raw) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCategory, raw)
}

func (a *App) validateFile(f *FileInput) (pdfdoc.Info, error) {
	if f == nil || f.Content == nil || f.Size <= 0 {
		return pdfdoc.Info{}, ErrFileRequired
	}
	if strings.ToLower(filepath.Ext(strings.TrimSpace(f.Name))) != ".pdf" {
		return pdfdoc.Info{}, ErrInvalidFileType
	}
	if f.Size > a.maxUploadBytes {
		return pdfdoc.Info{}, ErrFileTooLarge
	}
	info, err := pdfdoc.Inspect(f.Content, f.Size)
	if err != nil {
		return pdfdoc.Info{}, fmt.Errorf("%w: %v", ErrInvalidFileType, err)
	}
	return info, nil
}

func (a *App) validateCover(f *FileInput) (string, string, error) {
	if f == nil || f.Content == nil || f.Size <= 0 {
		return "", "", nil
	}
	if f.Size > a.maxCoverBytes {
		return "", "", ErrCoverTooLarge
	}
	mimeType, ext, err := pdfdoc.SniffImage(f.Content, f.Size)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidCover, err)
	}
	return mimeType, ext, nil
}

func normalizeCategories(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || slices.ContainsFunc(out, func(s string) bool { return strings.EqualFold(s, c) }) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func artistNameFor(ident domain.Identity) string {
	if name := strings.TrimSpace(ident.ArtistName); name != "" {
		return name
	}
	if name := strings.TrimSpace(ident.FullName); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(ident.Email, "@"); ok && strings.TrimSpace(local) != "" {
		return strings.TrimSpace(local)
	}
	return "Artist"
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_.")
}

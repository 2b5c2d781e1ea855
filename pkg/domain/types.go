package domain

import "time"

// DefaultCategories are offered when the config does not list any.
var DefaultCategories = []string{"Technology", "Design", "Business", "Science", "Health", "Travel"}

type Magazine struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	FileName         string    `json:"file_name"`
	FileSize         int64     `json:"file_size"`
	FileKey          string    `json:"-"`
	CoverKey         string    `json:"-"`
	FileURL          string    `json:"file_url,omitempty"`
	CoverImageURL    string    `json:"cover_image_url,omitempty"`
	PageCount        int       `json:"page_count"`
	IsDownloadable   bool      `json:"is_downloadable"`
	IsReadableOnline bool      `json:"is_readable_online"`
	ArtistName       string    `json:"artist_name,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Profile struct {
	ID          string            `json:"id"`
	ArtistName  string            `json:"artist_name"`
	FullName    string            `json:"full_name"`
	Bio         string            `json:"bio"`
	Website     string            `json:"website"`
	SocialLinks map[string]string `json:"social_links"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Identity is the verified subject of a bearer token.
type Identity struct {
	UserID     string    `json:"id"`
	Email      string    `json:"email"`
	ArtistName string    `json:"artist_name,omitempty"`
	FullName   string    `json:"full_name,omitempty"`
	TokenID    string    `json:"-"`
	ExpiresAt  time.Time `json:"-"`
}

type Stats struct {
	TotalMagazines  int `json:"total_magazines"`
	RegisteredUsers int `json:"registered_users"`
	TotalCategories int `json:"total_categories"`
}

// DashboardStats are the counters on an artist's own dashboard.
type DashboardStats struct {
	TotalMagazines int `json:"total_magazines"`
	ThisMonth      int `json:"this_month"`
	Categories     int `json:"categories"`
}

type ArtistPage struct {
	Artist    Profile    `json:"artist"`
	Magazines []Magazine `json:"magazines"`
	Featured  *Magazine  `json:"featured"`
}

// ViewerState is what a page viewer needs to render one magazine.
type ViewerState struct {
	Page     int     `json:"page"`
	NumPages int     `json:"num_pages"`
	Scale    float64 `json:"scale"`
	MinScale float64 `json:"min_scale"`
	MaxScale float64 `json:"max_scale"`
	Retries  int     `json:"retries"`
	CanPrev  bool    `json:"can_prev"`
	CanNext  bool    `json:"can_next"`
}

type Reading struct {
	Magazine Magazine    `json:"magazine"`
	FileURL  string      `json:"file_url"`
	Viewer   ViewerState `json:"viewer"`
}

package settings

// Mask replaces secrets in any representation handed to a caller.
const Mask = "********"

// Settings is the runtime configuration edited from the console.
type Settings struct {
	OutputDir       string               `json:"outputDir"`
	BrowseRoots     []string             `json:"browseRoots"`
	Torrent         TorrentSettings      `json:"torrent"`
	Qbit            QbitSettings         `json:"qbit"`
	Transmission    TransmissionSettings `json:"transmission"`
	Deluge          DelugeSettings       `json:"deluge"`
	Lacale          LacaleSettings       `json:"lacale"`
	Archive         ArchiveSettings      `json:"archive"`
	CategoryMapping map[string]string    `json:"categoryMapping"`
}

type TorrentSettings struct {
	PieceSize   int    `json:"pieceSize"`
	PrivateFlag bool   `json:"privateFlag"`
	Announce    string `json:"announce"`
	Source      string `json:"source"`
}

type QbitSettings struct {
	Enabled         bool   `json:"enabled"`
	URL             string `json:"url"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	InsecureTLS     bool   `json:"insecureTls"`
	DefaultCategory string `json:"defaultCategory"`
	DefaultTags     string `json:"defaultTags"`
}

type TransmissionSettings struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type DelugeSettings struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	Password string `json:"password"`
}

type LacaleSettings struct {
	Enabled bool   `json:"enabled"`
	APIURL  string `json:"apiUrl"`
	Token   string `json:"token"`
}

// ArchiveSettings configures the S3-compatible archive destination.
type ArchiveSettings struct {
	Enabled   bool   `json:"enabled"`
	Bucket    string `json:"bucket"`
	KeyPrefix string `json:"keyPrefix"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	Profile   string `json:"profile"`
}

// Defaults returns the settings used for any field absent from the stored document.
func Defaults() Settings {
	return Settings{
		OutputDir:   "/nas/output",
		BrowseRoots: []string{"/nas/media"},
		Torrent: TorrentSettings{
			PrivateFlag: true,
			Source:      "AATM-NAS",
		},
		Qbit: QbitSettings{
			Enabled:         true,
			DefaultCategory: "Films",
		},
		Transmission: TransmissionSettings{
			URL: "http://127.0.0.1:9091/transmission/rpc",
		},
		Deluge: DelugeSettings{
			URL:      "http://127.0.0.1:8112/json",
			Password: "deluge",
		},
		Archive: ArchiveSettings{
			KeyPrefix: "aatm",
			Region:    "us-east-1",
		},
		CategoryMapping: map[string]string{
			"Films":  "Films",
			"Series": "series",
			"Ebooks": "ebooks",
			"Jeux":   "jeux",
		},
	}
}

// Redacted returns a copy of s with every secret masked.
func (s Settings) Redacted() Settings {
	out := s
	out.BrowseRoots = append([]string(nil), s.BrowseRoots...)
	out.CategoryMapping = make(map[string]string, len(s.CategoryMapping))
	for k, v := range s.CategoryMapping {
		out.CategoryMapping[k] = v
	}
	out.Qbit.Password = mask(s.Qbit.Password)
	out.Transmission.Password = mask(s.Transmission.Password)
	out.Deluge.Password = mask(s.Deluge.Password)
	out.Lacale.Token = mask(s.Lacale.Token)
	return out
}

// Category returns the destination category configured for a media category,
// or the media category itself when unmapped.
func (s Settings) Category(media string) string {
	if v, ok := s.CategoryMapping[media]; ok && v != "" {
		return v
	}
	return media
}

// Roots is the set of directories caller-supplied artifact paths may live in.
func (s Settings) Roots() []string {
	roots := append([]string(nil), s.BrowseRoots...)
	if s.OutputDir != "" {
		roots = append(roots, s.OutputDir)
	}
	return roots
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return Mask
}

// secretFields lists, per section, the keys that hold credentials.
var secretFields = map[string]map[string]struct{}{
	"qbit":         {"password": {}},
	"transmission": {"password": {}},
	"deluge":       {"password": {}},
	"lacale":       {"token": {}},
}

func isSecret(section, key string) bool {
	_, ok := secretFields[section][key]
	return ok
}

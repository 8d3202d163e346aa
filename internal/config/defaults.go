package config

const (
	defaultBaseURL        = "https://merchant.matchingnumber.com/eng/gestione/getlist"
	defaultOrigin         = "https://merchant.matchingnumber.com"
	defaultReferer        = "https://merchant.matchingnumber.com/eng/gestione/index?class=Dati_Prodotto"
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"
	defaultAcceptLanguage = "en-US,en;q=0.9"
	defaultAPITimeoutMs   = 20000

	defaultReferencePageSize = 100
	defaultReferenceDelayMs  = 500

	defaultProductPageSize   = 20
	defaultProductMaxPages   = 148
	defaultProductMinDelayMs = 1000
	defaultProductMaxDelayMs = 2500

	defaultDuplicates = DuplicatesLastWins

	defaultImagesDir       = "images"
	defaultImageWorkers    = 1
	defaultImageQueueSize  = 64
	defaultImageTimeoutMs  = 15000
	defaultMainImageBase   = "https://www.matchingnumber.com/media/immagini/"
	defaultGalleryImageURL = "https://merchant.matchingnumber.com/scripts/imgresize.php?pic=immagini/articoli/"

	defaultCSVPath = "products_with_real_compatibility.csv"

	defaultRedisURL        = "redis://localhost:6379/0"
	defaultCacheTTLSeconds = 3600

	defaultLogLevel  = "info"
	defaultLogFormat = LogFormatAuto
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			BaseURL:        defaultBaseURL,
			Origin:         defaultOrigin,
			Referer:        defaultReferer,
			UserAgent:      defaultUserAgent,
			AcceptLanguage: defaultAcceptLanguage,
			TimeoutMs:      defaultAPITimeoutMs,
		},
		Reference: Reference{
			PageSize: defaultReferencePageSize,
			DelayMs:  defaultReferenceDelayMs,
		},
		Products: Products{
			PageSize:   defaultProductPageSize,
			MaxPages:   defaultProductMaxPages,
			MinDelayMs: defaultProductMinDelayMs,
			MaxDelayMs: defaultProductMaxDelayMs,
		},
		Compatibility: Compatibility{
			Duplicates: defaultDuplicates,
		},
		Images: Images{
			Enabled:        true,
			Dir:            defaultImagesDir,
			Workers:        defaultImageWorkers,
			QueueSize:      defaultImageQueueSize,
			TimeoutMs:      defaultImageTimeoutMs,
			MainBaseURL:    defaultMainImageBase,
			GalleryBaseURL: defaultGalleryImageURL,
		},
		Output: Output{
			CSVPath: defaultCSVPath,
		},
		Cache: Cache{
			RedisURL:   defaultRedisURL,
			TTLSeconds: defaultCacheTTLSeconds,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// Package effects holds the static registry of named transformations and
// the compiler that turns a selection of them into a single delivery
// descriptor for the remote store's transformation grammar.
package effects

// Category groups effects for the catalog listing.
type Category string

const (
	CategoryCompression Category = "compression"
	CategoryEnhancement Category = "enhancement"
	CategoryColor       Category = "colorAdjustments"
	CategoryArtistic    Category = "artisticEffects"
	CategoryBackground  Category = "backgroundEffects"
	CategoryResizing    Category = "resizing"
	CategoryVideo       Category = "videoEffects"
)

// Effect maps one human-facing identifier to exactly one fragment in the
// remote transformation grammar.
type Effect struct {
	ID          string
	Category    Category
	Fragment    string
	Description string
}

// Catalog is read-only after construction and safe to share across
// concurrent requests without locking.
type Catalog struct {
	ordered []Effect
	byID    map[string]Effect
}

func NewCatalog(effects []Effect) *Catalog {
	c := &Catalog{
		ordered: make([]Effect, 0, len(effects)),
		byID:    make(map[string]Effect, len(effects)),
	}
	for _, e := range effects {
		if _, exists := c.byID[e.ID]; exists {
			continue
		}
		c.byID[e.ID] = e
		c.ordered = append(c.ordered, e)
	}
	return c
}

// DefaultCatalog returns the full effect table understood by the remote
// delivery grammar.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Effect{
		{ID: "autoCompress", Category: CategoryCompression, Fragment: "q_auto,f_auto", Description: "Smart compression with quality preservation"},
		{ID: "webpFormat", Category: CategoryCompression, Fragment: "f_webp", Description: "Convert to WebP format (smaller size)"},
		{ID: "avifFormat", Category: CategoryCompression, Fragment: "f_avif", Description: "Convert to AVIF format (best compression)"},

		{ID: "autoEnhance", Category: CategoryEnhancement, Fragment: "e_auto_color,e_auto_contrast,e_auto_brightness", Description: "AI-powered auto enhancement"},
		{ID: "sharpen", Category: CategoryEnhancement, Fragment: "e_sharpen:100", Description: "Sharpen image details"},
		{ID: "unsharpMask", Category: CategoryEnhancement, Fragment: "e_unsharp_mask:200", Description: "Advanced sharpening technique"},

		{ID: "vibrance", Category: CategoryColor, Fragment: "e_vibrance:30", Description: "Boost color vibrance"},
		{ID: "saturation", Category: CategoryColor, Fragment: "e_saturation:20", Description: "Increase color saturation"},
		{ID: "brightness", Category: CategoryColor, Fragment: "e_brightness:10", Description: "Adjust brightness levels"},
		{ID: "contrast", Category: CategoryColor, Fragment: "e_contrast:15", Description: "Enhance contrast"},

		{ID: "blur", Category: CategoryArtistic, Fragment: "e_blur:300", Description: "Apply blur effect"},
		{ID: "grayscale", Category: CategoryArtistic, Fragment: "e_grayscale", Description: "Convert to grayscale"},
		{ID: "sepia", Category: CategoryArtistic, Fragment: "e_sepia:80", Description: "Apply sepia tone"},
		{ID: "vintage", Category: CategoryArtistic, Fragment: "e_sepia:50,e_brightness:-10,e_contrast:15", Description: "Vintage photo effect"},

		{ID: "removeBackground", Category: CategoryBackground, Fragment: "e_background_removal", Description: "AI background removal"},
		{ID: "blurBackground", Category: CategoryBackground, Fragment: "e_blur_region:1000,g_face", Description: "Blur background, keep subject sharp"},

		{ID: "resize800", Category: CategoryResizing, Fragment: "w_800,h_600,c_fit", Description: "Resize to 800x600 (web optimized)"},
		{ID: "resize1200", Category: CategoryResizing, Fragment: "w_1200,h_900,c_fit", Description: "Resize to 1200x900 (high quality)"},
		{ID: "thumbnail", Category: CategoryResizing, Fragment: "w_300,h_300,c_thumb,g_face", Description: "Create thumbnail (300x300)"},

		{ID: "videoCompress", Category: CategoryVideo, Fragment: "q_auto,f_auto", Description: "Compress video file"},
		{ID: "generateThumbnail", Category: CategoryVideo, Fragment: "so_2.0,w_400,h_300,c_fill", Description: "Generate video thumbnail"},
		{ID: "videoPreview", Category: CategoryVideo, Fragment: "so_0,du_3,w_400,h_300,c_fill,f_gif", Description: "Create GIF preview"},
	})
}

func (c *Catalog) Lookup(effectID string) (Effect, bool) {
	e, ok := c.byID[effectID]
	return e, ok
}

func (c *Catalog) Len() int {
	return len(c.ordered)
}

// Listing returns the catalog grouped by category for the /effects surface.
func (c *Catalog) Listing() map[Category]map[string]string {
	listing := make(map[Category]map[string]string)
	for _, e := range c.ordered {
		group, ok := listing[e.Category]
		if !ok {
			group = make(map[string]string)
			listing[e.Category] = group
		}
		group[e.ID] = e.Description
	}
	return listing
}

// SupportedFormats lists the source formats the remote store accepts.
func SupportedFormats() map[string][]string {
	return map[string][]string{
		"images": {"jpg", "jpeg", "png", "gif", "webp", "avif"},
		"videos": {"mp4", "avi", "mov", "wmv", "flv", "webm"},
	}
}

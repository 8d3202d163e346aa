package catalog

import (
	"encoding/json"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/merchant-catalog-export/pkg/compat"
	"github.com/Sternrassler/merchant-catalog-export/pkg/images"
)

// Fields read from and written to product records.
const (
	FieldCompatibility     = "compatibilita"
	FieldGalleryFilenames  = "gallery_filenames"
	FieldMainImageFilename = "main_image_filename"

	fieldGallery     = "galleria"
	fieldImage       = "immagine"
	fieldCompanyCode = "codiceAzienda"
)

// GallerySeparator joins gallery filenames in FieldGalleryFilenames.
const GallerySeparator = ", "

// ImageURLs tells the enricher where images live and where they go.
type ImageURLs struct {
	// MainBaseURL prefixes "<company code>/<name>" for the main image.
	MainBaseURL string

	// GalleryBaseURL prefixes "<company code>/<name>" for gallery images.
	GalleryBaseURL string

	// Dir is the local image root; each company gets a subfolder.
	Dir string

	// Disabled suppresses image jobs. Filenames are still derived.
	Disabled bool
}

// Enricher merges products with compatibility text and image filenames.
type Enricher struct {
	Index  *compat.Index
	Images ImageURLs
}

// Result describes what Enrich did to one product.
type Result struct {
	ProductID        compat.ID
	Compatibility    string
	CompanyCode      string
	MainImage        string
	GalleryFilenames []string

	// Jobs lists the images to materialize; empty without a company code.
	Jobs []images.Job
}

// HasCompatibility reports whether the product got a non-empty compatibility string.
func (r Result) HasCompatibility() bool {
	return r.Compatibility != ""
}

// Enrich sets FieldCompatibility, FieldGalleryFilenames and
// FieldMainImageFilename on p and returns the image jobs it implies.
// Missing or malformed image metadata never fails enrichment.
func (e *Enricher) Enrich(p *Product) Result {
	res := Result{ProductID: p.ID()}

	res.Compatibility = compat.Format(e.Index.Lookup(res.ProductID))
	p.SetString(FieldCompatibility, res.Compatibility)

	meta := imageMeta(p)
	res.CompanyCode = compat.Text(meta[fieldCompanyCode])
	res.MainImage = compat.Text(meta[fieldImage])
	res.GalleryFilenames = GalleryFilenames(p)

	p.SetString(FieldGalleryFilenames, strings.Join(res.GalleryFilenames, GallerySeparator))
	p.SetString(FieldMainImageFilename, res.MainImage)

	if safeSegment(res.CompanyCode) && !e.Images.Disabled {
		dir := filepath.Join(e.Images.Dir, res.CompanyCode)
		if res.MainImage != "" && e.Images.MainBaseURL != "" {
			res.Jobs = append(res.Jobs, e.job(e.Images.MainBaseURL, res.CompanyCode, res.MainImage, dir))
		}
		if e.Images.GalleryBaseURL != "" {
			for _, name := range res.GalleryFilenames {
				res.Jobs = append(res.Jobs, e.job(e.Images.GalleryBaseURL, res.CompanyCode, name, dir))
			}
		}
	}

	return res
}

func (e *Enricher) job(base, code, name, dir string) images.Job {
	return images.Job{
		URL:      base + url.PathEscape(code) + "/" + url.PathEscape(name),
		Dir:      dir,
		Filename: images.FilenameFromURL(name),
	}
}

// GalleryFilenames decodes the "galleria" field: a JSON string holding a JSON
// array of objects, each naming one picture under "immagine". Anything else
// yields no filenames.
func GalleryFilenames(p *Product) []string {
	raw, ok := p.Get(fieldGallery)
	if !ok {
		return nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil || encoded == "" {
		return nil
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(encoded), &items); err != nil {
		return nil
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		if name := compat.Text(item[fieldImage]); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// safeSegment reports whether s can be used as a single folder name.
func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// imageMeta returns the nested "immagine" object, or nil when the field is
// absent or not an object.
func imageMeta(p *Product) map[string]json.RawMessage {
	raw, ok := p.Get(fieldImage)
	if !ok {
		return nil
	}

	var meta map[string]json.RawMessage
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	return meta
}

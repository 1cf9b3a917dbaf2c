package layer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// Source fetches raw dataset payloads for one dataset variant. The
// compressed flag selects between the primary gzip path and its
// uncompressed sibling, which callers fall back to when the primary
// payload turns out to be an HTML error page.
type Source interface {
	Contours(ctx context.Context, kind Kind, z int, compressed bool) ([]byte, error)
	GenePoints(ctx context.Context, gene string, compressed bool) ([]byte, error)
}

// FileSource reads dataset files from the on-disk layout:
//
//	{root}/{variant}/contours/contours_processed_compressed/contours_z_{z}_flat.json.gz
//	{root}/{variant}/nuclei/nuclei_processed_compressed/nuclei_z_{z}_flat.json.gz
//	{root}/{variant}/genes/{gene}.json.gz
//
// with uncompressed siblings lacking the .gz suffix.
type FileSource struct {
	Root    string
	Variant string
}

func (f *FileSource) Contours(ctx context.Context, kind Kind, z int, compressed bool) ([]byte, error) {
	prefix := "contours"
	if kind == KindNuclei {
		prefix = "nuclei"
	}
	name := fmt.Sprintf("%s_z_%d_flat.json", prefix, z)
	if compressed {
		name += ".gz"
	}
	path := filepath.Join(f.Root, f.Variant, prefix, prefix+"_processed_compressed", name)
	return os.ReadFile(path)
}

func (f *FileSource) GenePoints(ctx context.Context, gene string, compressed bool) ([]byte, error) {
	name := gene + ".json"
	if compressed {
		name += ".gz"
	}
	path := filepath.Join(f.Root, f.Variant, "genes", name)
	return os.ReadFile(path)
}

// Genes lists the gene names available for the variant, from the
// compressed gene files on disk.
func (f *FileSource) Genes() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.Root, f.Variant, "genes"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".gz" {
			out = append(out, name[:len(name)-len(".json.gz")])
		}
	}
	return out, nil
}

// HTTPSource fetches dataset payloads from a running dataset server
// speaking the /api/contours and /api/genes contract.
type HTTPSource struct {
	BaseURL string
	Variant string
	Client  *http.Client
}

func (h *HTTPSource) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTPSource) get(ctx context.Context, path string, compressed bool) ([]byte, error) {
	u := fmt.Sprintf("%s%s?data=%s", h.BaseURL, path, url.QueryEscape(h.Variant))
	if !compressed {
		u += "&plain=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("layer: fetch %s: status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (h *HTTPSource) Contours(ctx context.Context, kind Kind, z int, compressed bool) ([]byte, error) {
	path := fmt.Sprintf("/api/contours/%d", z)
	if kind == KindNuclei {
		path = fmt.Sprintf("/api/nuclei/%d", z)
	}
	return h.get(ctx, path, compressed)
}

func (h *HTTPSource) GenePoints(ctx context.Context, gene string, compressed bool) ([]byte, error) {
	return h.get(ctx, "/api/genes/"+url.PathEscape(gene), compressed)
}

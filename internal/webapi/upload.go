package webapi

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"poster-studio/internal/dataurl"
	"poster-studio/internal/poster"
)

// readSubmission parses the multipart submit form. Files are read in
// parallel; their order in the form is kept.
func readSubmission(w http.ResponseWriter, r *http.Request) (poster.Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return poster.Submission{}, fmt.Errorf("%w: invalid multipart form: %v", dataurl.ErrMalformedEncoding, err)
	}
	form := r.MultipartForm

	products, err := readImages(form.File["product_images"])
	if err != nil {
		return poster.Submission{}, err
	}
	references, err := readImages(form.File["reference_images"])
	if err != nil {
		return poster.Submission{}, err
	}

	useReference, _ := strconv.ParseBool(strings.TrimSpace(r.FormValue("use_reference")))

	return poster.Submission{
		Name:                 r.FormValue("name"),
		Details:              r.FormValue("details"),
		ProductImages:        products,
		ReferenceImages:      references,
		ReferenceDescription: r.FormValue("reference_description"),
		UseReference:         useReference,
		Styles:               splitTags(form.Value["styles"]),
		Constraints:          splitTags(form.Value["constraints"]),
	}, nil
}

func readImages(headers []*multipart.FileHeader) ([]dataurl.Image, error) {
	if len(headers) == 0 {
		return nil, nil
	}

	images := make([]dataurl.Image, len(headers))
	var eg errgroup.Group
	for i, fh := range headers {
		eg.Go(func() error {
			img, err := readImage(fh)
			if err != nil {
				return fmt.Errorf("%s: %w", fh.Filename, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func readImage(fh *multipart.FileHeader) (dataurl.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return dataurl.Image{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return dataurl.Image{}, err
	}
	return dataurl.FromUpload(data, fh.Header.Get("Content-Type"))
}

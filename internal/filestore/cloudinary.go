package filestore

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cloudinary stores files as raw assets through the Cloudinary REST API.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// APIBase and DeliveryBase default to the public Cloudinary hosts.
	APIBase      string
	DeliveryBase string
	HTTP         *http.Client
	now          func() time.Time
}

// NewCloudinary creates a Cloudinary backend.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) *Cloudinary {
	return &Cloudinary{
		CloudName:    cloudName,
		APIKey:       apiKey,
		APISecret:    apiSecret,
		Folder:       folder,
		APIBase:      "https://api.cloudinary.com",
		DeliveryBase: "https://res.cloudinary.com",
		HTTP:         &http.Client{Timeout: 60 * time.Second},
		now:          time.Now,
	}
}

type cloudinaryUpload struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Bytes     int64  `json:"bytes"`
}

// Put streams r into a multipart upload without buffering the file.
func (c *Cloudinary) Put(ctx context.Context, name, _ string, r io.Reader) (Object, error) {
	publicID := newKey(name)
	if c.Folder != "" {
		publicID = strings.Trim(c.Folder, "/") + "/" + publicID
	}
	params := c.signed(map[string]string{"public_id": publicID})

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		for k, v := range params {
			if err := w.WriteField(k, v); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := w.CreateFormFile("file", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(w.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("upload"), pr)
	if err != nil {
		pr.Close()
		return Object{}, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result cloudinaryUpload
	if err := c.do(req, &result); err != nil {
		pr.CloseWithError(err)
		return Object{}, err
	}
	return Object{Key: result.PublicID, Size: result.Bytes}, nil
}

func (c *Cloudinary) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	u := fmt.Sprintf("%s/%s/raw/upload/%s", c.DeliveryBase, c.CloudName, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, 0, ErrNotExist
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("cloudinary: fetch failed (%d)", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Cloudinary) Delete(ctx context.Context, key string) error {
	form := url.Values{}
	for k, v := range c.signed(map[string]string{"public_id": key}) {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("destroy"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var result struct {
		Result string `json:"result"`
	}
	if err := c.do(req, &result); err != nil {
		return err
	}
	if result.Result != "ok" && result.Result != "not found" {
		return fmt.Errorf("cloudinary: destroy %s: %s", key, result.Result)
	}
	return nil
}

func (c *Cloudinary) endpoint(action string) string {
	return fmt.Sprintf("%s/v1_1/%s/raw/%s", c.APIBase, c.CloudName, action)
}

func (c *Cloudinary) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cloudinary: %s failed (%d): %s", req.URL.Path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return nil
}

// signed adds timestamp, api_key and signature to params.
func (c *Cloudinary) signed(params map[string]string) map[string]string {
	params["timestamp"] = strconv.FormatInt(c.now().Unix(), 10)
	params["signature"] = c.sign(params)
	params["api_key"] = c.APIKey
	return params
}

// sign computes the API signature. api_key, file and resource_type are not signed.
func (c *Cloudinary) sign(params map[string]string) string {
	excluded := map[string]bool{"api_key": true, "file": true, "resource_type": true, "signature": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excluded[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	h := sha1.New()
	h.Write([]byte(strings.Join(pairs, "&") + c.APISecret))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Package proxy implements the forwarding edge: clients call through a
// per-proxy API key, traffic streams to the upstream provider, and the
// full exchange is archived and announced on the event queue.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zulandar/stenograph/internal/archive"
	"github.com/zulandar/stenograph/internal/models"
	"github.com/zulandar/stenograph/internal/queue"
	"gorm.io/gorm"
)

// Server is the forwarding proxy. Archival and event emission happen
// after the client response completes; Start waits for in-flight
// archival before returning.
type Server struct {
	db      *gorm.DB
	store   archive.Store
	queue   *queue.Queue
	client  *http.Client
	resolve func(provider string) string

	wg sync.WaitGroup
}

// NewServer wires a proxy server over the given store and queue.
func NewServer(db *gorm.DB, store archive.Store, q *queue.Queue) *Server {
	return &Server{
		db:      db,
		store:   store,
		queue:   q,
		client:  &http.Client{},
		resolve: UpstreamBase,
	}
}

// Router builds the gin router. Every method on the forwarding path is
// accepted; the upstream decides what it supports.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Any("/:apiKey/:provider/*path", s.handleForward)
	return router
}

// Start runs the proxy server until ctx is cancelled, then shuts down
// gracefully and drains pending archival work.
func (s *Server) Start(ctx context.Context, port int, out io.Writer) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if out != nil {
		fmt.Fprintf(out, "Proxy listening on http://localhost:%d\n", port)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("proxy: %w", err)
	}
	s.wg.Wait()
	return nil
}

func (s *Server) handleForward(c *gin.Context) {
	apiKey := c.Param("apiKey")
	if !ValidateAPIKey(apiKey) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var proxyRow models.Proxy
	err := s.db.Where("api_key = ?", apiKey).First(&proxyRow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		log.Printf("proxy: lookup api key: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	provider := c.Param("provider")
	path := c.Param("path")
	receivedAt := time.Now()
	requestID := uuid.NewString()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	upstreamURL := s.resolve(provider) + path
	if raw := c.Request.URL.RawQuery; raw != "" {
		upstreamURL += "?" + raw
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, upstreamURL, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bad upstream request"})
		return
	}
	copyForwardHeaders(req.Header, c.Request.Header)

	requestMeta := archive.RequestMeta{
		RequestID:  requestID,
		Method:     c.Request.Method,
		Path:       path,
		Query:      c.Request.URL.RawQuery,
		Headers:    archivalHeaders(c.Request.Header),
		ReceivedAt: receivedAt,
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("proxy: upstream %s %s: %v", c.Request.Method, upstreamURL, err)
		s.archiveAsync(proxyRow, provider, requestID, receivedAt, requestMeta, body, nil, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream unreachable"})
		return
	}
	defer resp.Body.Close()

	responseBody := s.relay(c, resp)

	responseMeta := &archive.ResponseMeta{
		StatusCode:  resp.StatusCode,
		Headers:     archivalHeaders(resp.Header),
		DurationMs:  time.Since(receivedAt).Milliseconds(),
		CompletedAt: time.Now(),
	}
	s.archiveAsync(proxyRow, provider, requestID, receivedAt, requestMeta, body, responseMeta, responseBody)
}

// relay streams the upstream response to the client, flushing each
// chunk so streamed completions arrive as they are produced, and
// returns the full body for archival.
func (s *Server) relay(c *gin.Context, resp *http.Response) []byte {
	header := c.Writer.Header()
	for name, values := range resp.Header {
		if isHopByHop(name) {
			continue
		}
		for _, v := range values {
			header.Add(name, v)
		}
	}
	c.Writer.WriteHeader(resp.StatusCode)

	flusher, canFlush := c.Writer.(http.Flusher)

	var captured bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			captured.Write(buf[:n])
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				// Client went away; keep reading so the archive is complete.
				io.Copy(&captured, resp.Body)
				break
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("proxy: read upstream body: %v", err)
			}
			break
		}
	}
	return captured.Bytes()
}

// archiveAsync persists the exchange and announces it, off the request
// path. A nil responseMeta records a request that never got a response.
func (s *Server) archiveAsync(proxyRow models.Proxy, provider, requestID string, receivedAt time.Time, requestMeta archive.RequestMeta, requestBody []byte, responseMeta *archive.ResponseMeta, responseBody []byte) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		tenantID, proxyID := proxyRow.TenantID, proxyRow.ID

		metaData, err := json.Marshal(requestMeta)
		if err == nil {
			err = s.store.Put(archive.RequestMetaPath(tenantID, proxyID, receivedAt, requestID), metaData)
		}
		if err != nil {
			log.Printf("proxy: archive request meta %s: %v", requestID, err)
			return
		}
		if err := s.store.Put(archive.RequestBodyPath(tenantID, proxyID, receivedAt, requestID), requestBody); err != nil {
			log.Printf("proxy: archive request body %s: %v", requestID, err)
			return
		}

		if responseMeta != nil {
			respData, err := json.Marshal(responseMeta)
			if err == nil {
				err = s.store.Put(archive.ResponseMetaPath(tenantID, proxyID, receivedAt, requestID), respData)
			}
			if err != nil {
				log.Printf("proxy: archive response meta %s: %v", requestID, err)
				return
			}
			if err := s.store.Put(archive.ResponseBodyPath(tenantID, proxyID, receivedAt, requestID), responseBody); err != nil {
				log.Printf("proxy: archive response body %s: %v", requestID, err)
				return
			}
		}

		event := queue.ProviderRequestMessage{
			Type:        queue.TypeProviderRequest,
			TenantID:    tenantID,
			ProxyID:     proxyID,
			RequestID:   requestID,
			Provider:    provider,
			RequestDate: receivedAt,
		}
		if err := s.queue.Send(queue.TypeProviderRequest, event); err != nil {
			log.Printf("proxy: announce request %s: %v", requestID, err)
		}
	}()
}

// copyForwardHeaders copies client headers onto the upstream request.
// Host is owned by the upstream URL.
func copyForwardHeaders(dst, src http.Header) {
	for name, values := range src {
		if strings.EqualFold(name, "Host") {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// archivalHeaders flattens headers into ordered pairs for the archive,
// dropping credentials so secrets never land on disk.
func archivalHeaders(h http.Header) [][2]string {
	pairs := make([][2]string, 0, len(h))
	for name, values := range h {
		if strings.EqualFold(name, "Authorization") || strings.EqualFold(name, "X-Api-Key") {
			continue
		}
		for _, v := range values {
			pairs = append(pairs, [2]string{name, v})
		}
	}
	return pairs
}

// isHopByHop reports connection-scoped headers that must not be relayed.
func isHopByHop(name string) bool {
	switch strings.ToLower(name) {
	case "connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
		"te", "trailer", "transfer-encoding", "upgrade":
		return true
	}
	return false
}

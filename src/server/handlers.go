package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"series-observer/src/analysis"
	"series-observer/src/helpers"
	"series-observer/src/models"
	"series-observer/src/session"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Error mapping
// -----------------------------------------------------------------------------

func statusFor(kind string) int {
	switch kind {
	case "format_error", "empty_input":
		return http.StatusBadRequest
	case "validation_error", "degenerate_range":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	case "network_error":
		return http.StatusBadGateway
	case "database_error":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *ObserverServer) fail(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":   "payload_too_large",
			"message": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return
	}

	kind := helpers.ErrorKind(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "message": err.Error()})
}

// observe records an engine operation when metrics are enabled.
func (s *ObserverServer) observe(operation string, points int, started time.Time, err error) {
	if s.Metrics != nil {
		s.Metrics.Observe(operation, points, started, err)
	}
}

func (s *ObserverServer) updateSessionGauge() {
	if s.Metrics != nil {
		s.Metrics.SessionsActive.Set(float64(s.Store.Len()))
	}
}

// -----------------------------------------------------------------------------
// Service endpoints
// -----------------------------------------------------------------------------

func (s *ObserverServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := s.connected
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": connections,
		"sessions":    s.Store.Len(),
		"heap_mb":     session.HeapMB(),
	})
}

// -----------------------------------------------------------------------------

func (s *ObserverServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":             s.Config.Name,
		"max_points":       s.Engine.MaxPoints,
		"default_function": s.Engine.DefaultFunction,
		"transforms": []string{
			models.KindResample, models.KindRolling, models.KindDifference, models.KindNormalize,
			models.KindPctChange, models.KindZScore, models.KindBusinessDays,
		},
		"functions": []string{
			models.FuncMean, models.FuncSum, models.FuncMin, models.FuncMax,
			models.FuncFirst, models.FuncLast, models.FuncCount, models.FuncMedian,
		},
	})
}

// -----------------------------------------------------------------------------
// Sessions
// -----------------------------------------------------------------------------

func (s *ObserverServer) listSessions(c *gin.Context) {
	list, err := s.Store.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// -----------------------------------------------------------------------------

// createSession accepts either a multipart upload in field "file" or the raw
// document as request body. The format comes from ?format=, the content type,
// or detection, in that order.
func (s *ObserverServer) createSession(c *gin.Context) {
	raw, err := s.readUpload(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	started := time.Now()
	coll, err := s.Engine.Load(raw)
	s.observe("load", 0, started, err)
	if err != nil {
		s.fail(c, err)
		return
	}

	created, err := s.Store.Create(c.Request.Context(), raw.Name, coll)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.updateSessionGauge()
	s.Broadcast(models.MSessionEvent{Type: models.EventSessionCreated, Session: created.MSessionInfo})

	c.JSON(http.StatusCreated, created.MSessionInfo)
}

// -----------------------------------------------------------------------------

// readBody reads the whole request body, failing past MaxBodyBytes.
func (s *ObserverServer) readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxBodyBytes))
	if err != nil {
		return nil, &helpers.FormatError{SeriesError: helpers.SeriesError{Message: "read body", Cause: err}}
	}
	return body, nil
}

func (s *ObserverServer) readUpload(c *gin.Context) (models.MRawSource, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxBodyBytes)

	raw := models.MRawSource{
		Name:   c.DefaultQuery("name", "upload"),
		Format: strings.ToLower(c.Query("format")),
	}

	mediaType, _, _ := mime.ParseMediaType(c.ContentType())
	if mediaType == "multipart/form-data" {
		header, err := c.FormFile("file")
		if err != nil {
			return raw, &helpers.FormatError{SeriesError: helpers.SeriesError{Message: `multipart upload needs a "file" field`, Cause: err}}
		}
		f, err := header.Open()
		if err != nil {
			return raw, err
		}
		defer f.Close()
		if raw.Data, err = io.ReadAll(f); err != nil {
			return raw, err
		}
		if _, ok := c.GetQuery("name"); !ok {
			raw.Name = strings.TrimSuffix(header.Filename, extension(header.Filename))
		}
		if raw.Format == "" {
			raw.Format = formatFromName(header.Filename)
		}
		return raw, nil
	}

	data, err := s.readBody(c)
	if err != nil {
		return raw, err
	}
	raw.Data = data
	if raw.Format == "" {
		raw.Format = formatFromMediaType(mediaType)
	}
	return raw, nil
}

func extension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}

func formatFromName(name string) string {
	switch strings.ToLower(extension(name)) {
	case ".csv":
		return models.FormatCSV
	case ".json":
		return models.FormatJSON
	}
	return ""
}

func formatFromMediaType(mediaType string) string {
	switch mediaType {
	case "text/csv":
		return models.FormatCSV
	case "application/json":
		return models.FormatJSON
	}
	return ""
}

// -----------------------------------------------------------------------------

func (s *ObserverServer) getSession(c *gin.Context) {
	sess, err := s.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// -----------------------------------------------------------------------------

func (s *ObserverServer) deleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.Store.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	s.updateSessionGauge()
	s.Broadcast(models.MSessionEvent{Type: models.EventSessionDeleted, Session: models.MSessionInfo{ID: id}})
	c.Status(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Series
// -----------------------------------------------------------------------------

func (s *ObserverServer) lookupSeries(c *gin.Context) (*models.MSession, *models.MTimeSeries, bool) {
	sess, err := s.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return nil, nil, false
	}
	series, ok := sess.Collection.Get(c.Param("name"))
	if !ok {
		s.fail(c, helpers.NewNotFoundError("series %q not found in session %s", c.Param("name"), sess.ID))
		return nil, nil, false
	}
	return sess, series, true
}

// -----------------------------------------------------------------------------

func (s *ObserverServer) getSeries(c *gin.Context) {
	_, series, ok := s.lookupSeries(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, series)
}

// -----------------------------------------------------------------------------

func (s *ObserverServer) getSummary(c *gin.Context) {
	_, series, ok := s.lookupSeries(c)
	if !ok {
		return
	}
	started := time.Now()
	stats := s.Engine.Summarize(series)
	s.observe("summarize", series.Len(), started, nil)
	c.JSON(http.StatusOK, stats)
}

// -----------------------------------------------------------------------------

func (s *ObserverServer) bindSpec(c *gin.Context) (models.MTransformSpec, error) {
	var spec models.MTransformSpec
	body, err := s.readBody(c)
	if err != nil {
		return spec, err
	}
	if err := json.Unmarshal(body, &spec); err != nil {
		return spec, &helpers.FormatError{SeriesError: helpers.SeriesError{Message: "invalid transform", Cause: err}}
	}
	return spec, nil
}

func wantsSave(c *gin.Context) bool {
	save, _ := strconv.ParseBool(c.DefaultQuery("save", "false"))
	return save
}

// -----------------------------------------------------------------------------

// transformSeries derives a new series. With ?save=true the result replaces
// the series in the session.
func (s *ObserverServer) transformSeries(c *gin.Context) {
	sess, series, ok := s.lookupSeries(c)
	if !ok {
		return
	}
	spec, err := s.bindSpec(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	started := time.Now()
	out, err := s.Engine.Transform(series, spec)
	s.observe("transform_"+spec.Kind, series.Len(), started, err)
	if err != nil {
		s.fail(c, err)
		return
	}

	if wantsSave(c) {
		coll := models.NewSeriesCollection()
		for _, existing := range sess.Collection.All() {
			coll.Replace(existing)
		}
		coll.Replace(out)
		if !s.saveCollection(c, sess.ID, coll) {
			return
		}
	}
	c.JSON(http.StatusOK, out)
}

// -----------------------------------------------------------------------------

// transformSession applies one spec to every series of the session.
func (s *ObserverServer) transformSession(c *gin.Context) {
	sess, err := s.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	spec, err := s.bindSpec(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	started := time.Now()
	out, err := s.Engine.TransformAll(c.Request.Context(), sess.Collection, spec)
	s.observe("transform_all_"+spec.Kind, sess.Points, started, err)
	if err != nil {
		s.fail(c, err)
		return
	}

	if wantsSave(c) && !s.saveCollection(c, sess.ID, out) {
		return
	}
	c.JSON(http.StatusOK, out)
}

// -----------------------------------------------------------------------------

func (s *ObserverServer) saveCollection(c *gin.Context, id string, coll *models.MSeriesCollection) bool {
	updated, err := s.Store.Update(c.Request.Context(), id, coll)
	if err != nil {
		s.fail(c, err)
		return false
	}
	s.Broadcast(models.MSessionEvent{Type: models.EventSessionUpdated, Session: updated.MSessionInfo})
	return true
}

// -----------------------------------------------------------------------------
// Vintages
// -----------------------------------------------------------------------------

// postVintages takes the vintage document as body. Optional query values:
// start (drop earlier timepoints), first and second (vintages to compare).
func (s *ObserverServer) postVintages(c *gin.Context) {
	var dates [3]time.Time
	for i, key := range []string{"start", "first", "second"} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := analysis.ParseTimestamp(raw)
		if err != nil {
			s.fail(c, helpers.NewFormatError("query %s: %v", key, err))
			return
		}
		dates[i] = t
	}

	body, err := s.readBody(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	started := time.Now()
	report, err := s.Engine.VintageReport(body, dates[0], dates[1], dates[2])
	s.observe("vintages", 0, started, err)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

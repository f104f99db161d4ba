package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studtime/studtime/internal/models"
	"github.com/studtime/studtime/internal/service"
	"github.com/studtime/studtime/pkg/export"
	"github.com/studtime/studtime/pkg/response"
)

// TimetableHandler serves synthesized week timetables in JSON, raster and
// document forms.
type TimetableHandler struct {
	users        *service.UserService
	weeks        *service.WeekCacheService
	images       *service.ImageService
	pdf          *export.PDFExporter
	csv          *export.CSVExporter
	defaultStyle string
}

// NewTimetableHandler constructs the timetable handler.
func NewTimetableHandler(users *service.UserService, weeks *service.WeekCacheService, images *service.ImageService, defaultStyle string) *TimetableHandler {
	return &TimetableHandler{
		users:        users,
		weeks:        weeks,
		images:       images,
		pdf:          export.NewPDFExporter(),
		csv:          export.NewCSVExporter(),
		defaultStyle: defaultStyle,
	}
}

// Get serves a user's personalized week.
func (h *TimetableHandler) Get(c *gin.Context) {
	tt, err := h.userWeek(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tt, nil)
}

// GetGroup serves the personalization-free week of a group.
func (h *TimetableHandler) GetGroup(c *gin.Context) {
	year, week, err := weekQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	// An anonymous zero-id user resolves to the shared cache entry.
	viewer := &models.User{GroupID: c.Param("groupId")}
	tt, err := h.weeks.GetOrBuild(c.Request.Context(), viewer, year, week, service.BuildOptions{})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tt, nil)
}

// GetImage serves the rendered week raster.
func (h *TimetableHandler) GetImage(c *gin.Context) {
	tt, err := h.userWeek(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	style := c.DefaultQuery("style", h.defaultStyle)
	png, err := h.images.GetOrRender(c.Request.Context(), tt, style)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

// GetPDF serves the week as a printable document.
func (h *TimetableHandler) GetPDF(c *gin.Context) {
	tt, err := h.userWeek(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	doc, err := h.pdf.Render(export.WeekDataset(tt), export.WeekTitle(tt.GroupID, tt.Year, tt.WeekNumber))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=timetable-%d-%d.pdf", tt.Year, tt.WeekNumber))
	c.Data(http.StatusOK, "application/pdf", doc)
}

// GetCSV serves the week as CSV.
func (h *TimetableHandler) GetCSV(c *gin.Context) {
	tt, err := h.userWeek(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	doc, err := h.csv.Render(export.WeekDataset(tt))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=timetable-%d-%d.csv", tt.Year, tt.WeekNumber))
	c.Data(http.StatusOK, "text/csv", doc)
}

func (h *TimetableHandler) userWeek(c *gin.Context) (*models.Timetable, error) {
	id, err := userIDParam(c)
	if err != nil {
		return nil, err
	}
	year, week, err := weekQuery(c)
	if err != nil {
		return nil, err
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}

	opts := service.BuildOptions{
		IgnoreCache: boolQuery(c, "fresh"),
		ForceSync:   boolQuery(c, "force_sync"),
	}
	return h.weeks.GetOrBuild(c.Request.Context(), user, year, week, opts)
}

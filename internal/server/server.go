package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/avolkov/macrocoach/internal/errors"
	"github.com/avolkov/macrocoach/internal/services"
)

// Server is the thin HTTP surface over the core services. Identity
// resolution is out of scope; user ids come straight from the path.
type Server struct {
	users     *services.UserService
	programs  *services.ProgramService
	reviews   *services.ReviewService
	nutrition *services.NutritionService
	weights   *services.WeightService
	streaks   *services.StreakService
	sweep     *services.SweepService
}

func New(users *services.UserService, programs *services.ProgramService, reviews *services.ReviewService,
	nutrition *services.NutritionService, weights *services.WeightService, streaks *services.StreakService,
	sweep *services.SweepService) *Server {
	return &Server{
		users:     users,
		programs:  programs,
		reviews:   reviews,
		nutrition: nutrition,
		weights:   weights,
		streaks:   streaks,
		sweep:     sweep,
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.POST("/users", s.createUser)
	r.GET("/users/:id/stats", s.getStats)

	r.POST("/users/:id/programs", s.createProgram)
	r.GET("/users/:id/programs/active", s.getActiveProgram)
	r.PATCH("/users/:id/programs/:programId", s.updateProgram)
	r.GET("/users/:id/programs/:programId/history", s.getMacroHistory)
	r.POST("/users/:id/programs/:programId/reviews", s.generateReview)
	r.GET("/users/:id/reviews", s.listReviews)

	r.POST("/reviews/:id/accept", s.acceptReview)
	r.POST("/reviews/:id/reject", s.rejectReview)

	r.POST("/users/:id/food-entries", s.logFood)
	r.GET("/users/:id/daily-totals", s.getDailyTotals)
	r.POST("/users/:id/weights", s.logWeight)
	r.GET("/users/:id/weights", s.listWeights)

	r.POST("/admin/sweep", s.runSweep)
}

// errStatus maps the error taxonomy onto HTTP statuses.
func errStatus(err error) int {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Type {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeInsufficientData:
		return http.StatusUnprocessableEntity
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errStatus(err), gin.H{"error": err.Error()})
}

func pathUint(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(v), true
}

type createUserReq struct {
	Email      string `json:"email" binding:"required"`
	Name       string `json:"name"`
	TelegramID int64  `json:"telegramId"`
}

func (s *Server) createUser(c *gin.Context) {
	var req createUserReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.users.RegisterUser(c.Request.Context(), req.Email, req.Name, req.TelegramID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) getStats(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	stats, err := s.streaks.GetStats(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type createProgramReq struct {
	Template       string   `json:"template"`
	StartDate      string   `json:"startDate"` // YYYY-MM-DD, defaults to today
	DurationWeeks  int      `json:"durationWeeks"`
	StartingWeight *float64 `json:"startingWeight"`
	TargetWeight   *float64 `json:"targetWeight"`
	Calories       int      `json:"calories"`
	Protein        int      `json:"protein"`
	Carbs          int      `json:"carbs"`
	Fat            int      `json:"fat"`
}

func (s *Server) createProgram(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	var req createProgramReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	startDate := time.Now()
	if req.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be YYYY-MM-DD"})
			return
		}
		startDate = parsed
	}

	program, err := s.programs.CreateProgram(c.Request.Context(), userID, services.CreateProgramInput{
		Template:       req.Template,
		StartDate:      startDate,
		DurationWeeks:  req.DurationWeeks,
		StartingWeight: req.StartingWeight,
		TargetWeight:   req.TargetWeight,
		Targets: services.MacroTargets{
			Calories: req.Calories,
			Protein:  req.Protein,
			Carbs:    req.Carbs,
			Fat:      req.Fat,
		},
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, program)
}

func (s *Server) getActiveProgram(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	program, err := s.programs.GetActiveProgram(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if program == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active program"})
		return
	}
	c.JSON(http.StatusOK, program)
}

type updateProgramReq struct {
	Status       *string  `json:"status"`
	EndingWeight *float64 `json:"endingWeight"`
	Notes        *string  `json:"notes"`
}

func (s *Server) updateProgram(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	programID, ok := pathUint(c, "programId")
	if !ok {
		return
	}
	var req updateProgramReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	program, err := s.programs.UpdateProgram(c.Request.Context(), userID, programID, services.UpdateProgramInput{
		Status:       req.Status,
		EndingWeight: req.EndingWeight,
		Notes:        req.Notes,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, program)
}

func (s *Server) getMacroHistory(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	programID, ok := pathUint(c, "programId")
	if !ok {
		return
	}
	if _, err := s.programs.GetProgram(c.Request.Context(), userID, programID); err != nil {
		abortWithError(c, err)
		return
	}
	entries, err := s.programs.MacroHistory(c.Request.Context(), programID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) generateReview(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	programID, ok := pathUint(c, "programId")
	if !ok {
		return
	}
	force := c.Query("force") == "true"
	review, err := s.reviews.GenerateReview(c.Request.Context(), userID, programID, force)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (s *Server) listReviews(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	reviews, err := s.reviews.ListReviews(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}

type decisionReq struct {
	Notes string `json:"notes"`
}

func (s *Server) acceptReview(c *gin.Context) {
	reviewID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	var req decisionReq
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	review, err := s.reviews.AcceptReview(c.Request.Context(), reviewID, req.Notes)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (s *Server) rejectReview(c *gin.Context) {
	reviewID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	var req decisionReq
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	review, err := s.reviews.RejectReview(c.Request.Context(), reviewID, req.Notes)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

type logFoodReq struct {
	Name     string  `json:"name"`
	Date     string  `json:"date"` // YYYY-MM-DD, defaults to today
	Servings float64 `json:"servings"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

func (s *Server) logFood(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	var req logFoodReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var day time.Time
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	entry, err := s.nutrition.LogEntry(c.Request.Context(), userID, services.LogEntryInput{
		Name:     req.Name,
		Date:     day,
		Servings: req.Servings,
		Calories: req.Calories,
		Protein:  req.Protein,
		Carbs:    req.Carbs,
		Fat:      req.Fat,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) getDailyTotals(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	start, err := time.Parse("2006-01-02", c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse("2006-01-02", c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
		return
	}
	totals, err := s.nutrition.DailyTotals(c.Request.Context(), userID, start, end)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

type logWeightReq struct {
	Weight float64 `json:"weight"`
	Date   string  `json:"date"`
}

func (s *Server) logWeight(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	var req logWeightReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var day time.Time
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	entry, err := s.weights.LogWeight(c.Request.Context(), userID, req.Weight, day)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) listWeights(c *gin.Context) {
	userID, ok := pathUint(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	entries, err := s.weights.Recent(c.Request.Context(), userID, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) runSweep(c *gin.Context) {
	summary, err := s.sweep.Run(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	if summary == nil {
		c.JSON(http.StatusOK, gin.H{"status": "already ran today"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

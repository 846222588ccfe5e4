package httpapi

import (
	"net/http"

	"smartfit-coach/internal/app"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Server struct {
	App    *app.App
	Tokens TokenService

	// Webhook, when set, receives Telegram updates.
	Webhook http.Handler
}

func NewServer(a *app.App) *Server {
	return &Server{
		App:    a,
		Tokens: NewTokenService(a.Config()),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger)
	if origins := s.App.Config().CORSOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", s.Health)
	if s.Webhook != nil {
		r.Method(http.MethodPost, "/telegram/webhook", s.Webhook)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(WithAuth(s.Tokens))

		api.Route("/me", func(me chi.Router) {
			me.Get("/profile", s.GetProfile)
			me.Put("/profile/goal", s.SaveGoal)
			me.Get("/weights/analysis", s.WeightAnalysis)
			me.Get("/body-measurements/analysis", s.BodyAnalysis)
		})

		api.Post("/food/parse", s.ParseMeal)
		api.Post("/food/parse-image", s.ParseMealImage)

		api.Route("/food-plans/{planID}", func(plan chi.Router) {
			plan.Post("/optimize", s.OptimizePlan)
			plan.Post("/generate", s.GeneratePlan)
			plan.Post("/macros", s.GenerateMacros)
			plan.Get("/sections/{sectionID}/alternatives", s.SectionAlternatives)
		})

		api.Post("/gym-plans", s.CreateGymPlan)
		api.Post("/gym-plans/{planID}/notes", s.GymPlanNote)
		api.Get("/gym-plans/{planID}/calendar.ics", s.GymPlanCalendar)
		api.Post("/gym-sections/{sectionID}/notes", s.GymSectionNote)
		api.Post("/gym-sections/{sectionID}/classify", s.ClassifyGymSection)
		api.Post("/gym-items/{itemID}/notes", s.GymItemNote)
		api.Post("/gym-items/{itemID}/alternative", s.GymItemAlternative)
		api.Post("/gym-items/{itemID}/warmup", s.GymItemWarmup)
		api.Delete("/gym-sets/{setID}", s.DeleteGymSet)
		api.Get("/exercises/{exerciseID}/suggested-weight", s.SuggestedWeight)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(RequireAdmin)
			admin.Get("/metrics/usage", s.MetricsUsage)
			admin.Get("/metrics/stream", s.MetricsStream)
		})
	})
	return r
}

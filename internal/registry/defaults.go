package registry

import (
	"time"

	"github.com/ShayCichocki/foreman/pkg/models"
)

func makeCap(name, description string, duration time.Duration, cpu, memory float64) models.Capability {
	return models.Capability{
		Name:              name,
		Description:       description,
		EstimatedDuration: duration,
		Cost:              map[string]float64{"cpu": cpu, "memory": memory},
	}
}

// RegisterDefaults registers the standard six-agent fleet used for
// forecasting pipelines: data analysis, preprocessing, training,
// evaluation, forecasting, and a supervisor.
func (r *Registry) RegisterDefaults() []*models.Agent {
	fleet := []struct {
		name         string
		class        string
		capabilities []models.Capability
	}{
		{
			name:  "Data Analyst",
			class: "data_analyst",
			capabilities: []models.Capability{
				makeCap("data_analysis", "Statistical analysis of time series data", 30*time.Second, 20, 30),
				makeCap("data_validation", "Validate data quality and completeness", 15*time.Second, 10, 15),
			},
		},
		{
			name:  "Preprocessor",
			class: "preprocessing",
			capabilities: []models.Capability{
				makeCap("data_cleaning", "Clean and normalize raw data", 20*time.Second, 15, 25),
				makeCap("feature_engineering", "Derive model features from raw series", 25*time.Second, 20, 30),
			},
		},
		{
			name:  "Model Trainer",
			class: "model_trainer",
			capabilities: []models.Capability{
				makeCap("model_training", "Train forecasting models", 2*time.Minute, 60, 50),
				makeCap("hyperparameter_tuning", "Search model hyperparameters", 5*time.Minute, 70, 60),
			},
		},
		{
			name:  "Evaluator",
			class: "evaluator",
			capabilities: []models.Capability{
				makeCap("model_evaluation", "Evaluate model accuracy against holdout data", 30*time.Second, 25, 20),
				makeCap("model_comparison", "Compare candidate models", 20*time.Second, 15, 15),
			},
		},
		{
			name:  "Forecaster",
			class: "forecaster",
			capabilities: []models.Capability{
				makeCap("forecasting", "Generate forecasts from trained models", 45*time.Second, 30, 25),
				makeCap("uncertainty_estimation", "Compute forecast confidence intervals", 30*time.Second, 20, 20),
			},
		},
		{
			name:  "Supervisor",
			class: "supervisor",
			capabilities: []models.Capability{
				makeCap("coordination", "Coordinate multi-agent pipelines", 10*time.Second, 5, 10),
				makeCap("quality_control", "Review pipeline outputs", 15*time.Second, 10, 10),
			},
		},
	}

	agents := make([]*models.Agent, 0, len(fleet))
	for _, spec := range fleet {
		agents = append(agents, r.Register(spec.name, spec.class, spec.capabilities, nil))
	}
	return agents
}

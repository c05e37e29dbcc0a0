package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	spinhttp "github.com/spinframework/spin-go-sdk/v2/http"
	spinvars "github.com/spinframework/spin-go-sdk/v2/variables"

	"github.com/timgluz/autoprocess/autoprocess"
	"github.com/timgluz/autoprocess/autoprocess/spinkv"
	"github.com/timgluz/autoprocess/log"
	"github.com/timgluz/autoprocess/middleware"
	"github.com/timgluz/autoprocess/response"
	"github.com/timgluz/autoprocess/secret"
	"github.com/timgluz/autoprocess/timeseries"
	"github.com/timgluz/autoprocess/timeseries/spinsql"
)

type autoprocessAppConfig struct {
	DBName           string `json:"db_name"`           // e.g., "default"
	DefinitionsStore string `json:"definitions_store"` // e.g., "autoprocess_store"
	Definitions      string `json:"definitions"`       // YAML document seeding timeseries and definitions
	APIKey           string `json:"api_key"`

	LogLevel string `json:"log_level"`
}

type autoprocessAppComponents struct {
	config autoprocessAppConfig

	store       *timeseries.SQLRepository
	definitions autoprocess.Repository
	executor    *autoprocess.Executor
	secretStore secret.Store

	logger *slog.Logger
}

func init() {
	spinhttp.Handle(func(w http.ResponseWriter, r *http.Request) {
		config, err := newAutoprocessAppConfigFromSpinVariables()
		if err != nil {
			response.RenderFatal(w, fmt.Errorf("failed to load autoprocess app configuration: %w", err))
			return
		}

		appComponents, err := initAutoprocessAppComponents(r, *config)
		if err != nil {
			fmt.Println("Error initializing autoprocess app components:", err)
			response.RenderFatal(w, fmt.Errorf("failed to initialize autoprocess app components"))
			return
		}
		defer appComponents.Close()

		if !appComponents.IsReady() {
			fmt.Println("Autoprocess app components are not ready")
			response.RenderFatal(w, fmt.Errorf("autoprocess app components are not ready"))
			return
		}

		router := spinhttp.NewRouter()
		router.GET("/autoprocesses", middleware.BearerAuth(newListDefinitionsHandler(appComponents), appComponents.secretStore))
		router.PUT("/autoprocesses/:id", middleware.BearerAuth(newSaveDefinitionHandler(appComponents), appComponents.secretStore))
		router.POST("/autoprocesses/:id/execute", middleware.BearerAuth(newExecuteHandler(appComponents), appComponents.secretStore))
		router.POST("/timeseries/:id/data", middleware.BearerAuth(newAppendDataHandler(appComponents), appComponents.secretStore))

		router.NotFound = response.NewNotFoundHandler(appComponents.logger)
		router.MethodNotAllowed = response.NewMethodNotAllowedHandler(appComponents.logger)
		router.ServeHTTP(w, r)
	})
}

func main() {}

func newListDefinitionsHandler(appComponents *autoprocessAppComponents) spinhttp.RouterHandle {
	return func(w http.ResponseWriter, r *http.Request, params spinhttp.Params) {
		items, err := appComponents.definitions.List(r.Context())
		if err != nil {
			response.RenderFatal(w, err)
			return
		}

		pagination, err := response.ParsePagination(r)
		if err != nil {
			response.RenderError(w, err, http.StatusBadRequest)
			return
		}
		page := response.Paginate(items, &pagination)
		response.RenderJSONResponse(w, response.NewCollectionResponse(page, &pagination))
	}
}

func newSaveDefinitionHandler(appComponents *autoprocessAppComponents) spinhttp.RouterHandle {
	return func(w http.ResponseWriter, r *http.Request, params spinhttp.Params) {
		var d autoprocess.Definition
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			response.RenderError(w, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
			return
		}
		d.ID = params.ByName("id")

		if err := appComponents.executor.SaveDefinition(r.Context(), &d); err != nil {
			renderExecutionError(w, err)
			return
		}

		// components have no background workers
		result, err := appComponents.executor.Execute(r.Context(), d.ID)
		if err != nil {
			renderExecutionError(w, err)
			return
		}
		response.RenderJSONResponse(w, response.NewActionResponse("Definition saved: "+d.ID, result))
	}
}

func newExecuteHandler(appComponents *autoprocessAppComponents) spinhttp.RouterHandle {
	return func(w http.ResponseWriter, r *http.Request, params spinhttp.Params) {
		result, err := appComponents.executor.Execute(r.Context(), params.ByName("id"))
		if err != nil {
			renderExecutionError(w, err)
			return
		}

		response.RenderJSONResponse(w, response.NewActionResponse("Definition executed: "+result.DefinitionID, result))
	}
}

// newAppendDataHandler appends the posted records and then runs the
// definitions reading from the series within the same request.
func newAppendDataHandler(appComponents *autoprocessAppComponents) spinhttp.RouterHandle {
	return func(w http.ResponseWriter, r *http.Request, params spinhttp.Params) {
		ctx := r.Context()
		logger := appComponents.logger
		timeseriesID := params.ByName("id")

		var frame timeseries.Frame
		if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
			response.RenderError(w, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
			return
		}

		if err := appComponents.executor.AppendData(ctx, timeseriesID, &frame); err != nil {
			renderExecutionError(w, err)
			return
		}

		dependents, err := appComponents.definitions.ListBySource(ctx, timeseriesID)
		if err != nil {
			response.RenderFatal(w, err)
			return
		}
		ids := make([]string, 0, len(dependents))
		for _, d := range dependents {
			ids = append(ids, d.ID)
		}

		var results []*autoprocess.Result
		var execErr error
		if len(ids) > 0 {
			results, execErr = appComponents.executor.ExecuteAll(ctx, ids...)
			if execErr != nil {
				logger.Error("Dependent executions failed", "timeseries_id", timeseriesID, "error", execErr)
			}
		}

		// the append itself succeeded, so failed dependents only show up in Errors
		response.RenderJSON(w, http.StatusCreated, response.NewPartialResponse(
			fmt.Sprintf("%d records appended to %s", frame.Len(), timeseriesID), results, execErr))
	}
}

func renderExecutionError(w http.ResponseWriter, err error) {
	switch {
	case autoprocess.IsConfigurationError(err):
		response.RenderError(w, err, http.StatusUnprocessableEntity)
	case errors.Is(err, autoprocess.ErrDefinitionNotFound), errors.Is(err, timeseries.ErrNotFound):
		response.RenderError(w, err, http.StatusNotFound)
	case errors.Is(err, timeseries.ErrAppendNotAfterEnd), errors.Is(err, timeseries.ErrInvalidFrame):
		response.RenderError(w, err, http.StatusBadRequest)
	default:
		response.RenderFatal(w, err)
	}
}

func newAutoprocessAppConfigFromSpinVariables() (*autoprocessAppConfig, error) {
	dbName, err := spinvars.Get("db_name")
	if err != nil {
		return nil, fmt.Errorf("failed to get db_name: %w", err)
	}

	definitionsStore, err := spinvars.Get("definitions_store")
	if err != nil {
		return nil, fmt.Errorf("failed to get definitions_store: %w", err)
	}

	definitions, err := spinvars.Get("definitions")
	if err != nil {
		return nil, fmt.Errorf("failed to get definitions: %w", err)
	}

	apiKey, err := spinvars.Get("api_key")
	if err != nil {
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	logLevel, err := spinvars.Get("log_level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log_level: %w", err)
	}

	return &autoprocessAppConfig{
		DBName:           dbName,
		DefinitionsStore: definitionsStore,
		Definitions:      definitions,
		APIKey:           apiKey,
		LogLevel:         logLevel,
	}, nil
}

func initAutoprocessAppComponents(r *http.Request, config autoprocessAppConfig) (*autoprocessAppComponents, error) {
	ctx := r.Context()
	logger := log.New(config.LogLevel, log.FormatText, os.Stderr).With("component", "autoprocess")
	logger.Info("Initializing autoprocess components")

	file, err := autoprocess.ParseFile([]byte(config.Definitions))
	if err != nil {
		return nil, err
	}

	store, err := spinsql.NewRepository(ctx, config.DBName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create time series repository: %w", err)
	}
	for _, ts := range file.Timeseries {
		if err := store.AddTimeseries(ctx, &ts); err != nil && !errors.Is(err, timeseries.ErrAlreadyExists) {
			return nil, fmt.Errorf("failed to register time series %s: %w", ts.ID, err)
		}
	}

	definitions, err := spinkv.NewRepository(config.DefinitionsStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open definitions store: %w", err)
	}
	executor := autoprocess.NewExecutor(definitions, store, logger)
	for _, d := range file.Definitions {
		if err := executor.SaveDefinition(ctx, &d); err != nil {
			return nil, fmt.Errorf("failed to seed definition %s: %w", d.ID, err)
		}
	}

	secretStore, err := secret.NewTokenStore(secret.ParseTokens(config.APIKey)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret store: %w", err)
	}

	return &autoprocessAppComponents{
		config:      config,
		store:       store,
		definitions: definitions,
		executor:    executor,
		secretStore: secretStore,
		logger:      logger,
	}, nil
}

func (c *autoprocessAppComponents) IsReady() bool {
	if c.logger == nil {
		fmt.Println("Logger of autoprocess app components is not initialized")
		return false
	}

	if c.executor == nil || !c.executor.IsReady() {
		c.logger.Error("Executor is not initialized or not ready")
		return false
	}

	if c.secretStore == nil || !c.secretStore.IsReady() {
		c.logger.Error("Secret store is not initialized or not ready")
		return false
	}

	return true
}

func (c *autoprocessAppComponents) Close() {
	if c.definitions != nil {
		if err := c.definitions.Close(); err != nil {
			c.logger.Error("Failed to close definitions store", "error", err)
		}
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("Failed to close time series repository", "error", err)
		}
	}

	if c.secretStore != nil {
		if err := c.secretStore.Close(); err != nil {
			c.logger.Error("Failed to close secret store", "error", err)
		}
	}
}

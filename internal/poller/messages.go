package poller

import (
	"fmt"
	"strings"
)

const (
	LangFR = "fr"
	LangEN = "en"
)

// Catalog holds the user-facing status texts for one language.
type Catalog struct {
	Pending        string
	Processing     string
	Completed      string
	Failed         string
	FailedGeneric  string
	RetryingError  string
	TooManyChecks  string
	AbortedErrors  string
	ResultsFailed  string
	RetryAvailable string
}

var catalogs = map[string]Catalog{
	LangEN: {
		Pending:        "Analysis queued (%.0f%%)",
		Processing:     "Analysis in progress (%.0f%%)",
		Completed:      "Analysis completed",
		Failed:         "Analysis failed: %s",
		FailedGeneric:  "unknown error",
		RetryingError:  "Status check failed, retrying (%d/%d)",
		TooManyChecks:  "Analysis timed out: too many status checks",
		AbortedErrors:  "aborted after repeated errors",
		ResultsFailed:  "Analysis completed but results could not be loaded: %s",
		RetryAvailable: "Retry analysis",
	},
	LangFR: {
		Pending:        "Analyse en attente (%.0f%%)",
		Processing:     "Analyse en cours (%.0f%%)",
		Completed:      "Analyse terminée",
		Failed:         "Échec de l'analyse : %s",
		FailedGeneric:  "erreur inconnue",
		RetryingError:  "Échec de la vérification du statut, nouvel essai (%d/%d)",
		TooManyChecks:  "Délai dépassé : trop de vérifications du statut",
		AbortedErrors:  "abandon après plusieurs erreurs",
		ResultsFailed:  "Analyse terminée mais les résultats sont indisponibles : %s",
		RetryAvailable: "Relancer l'analyse",
	},
}

var trainingCatalogs = map[string]Catalog{
	LangEN: {
		Pending:        "Training initializing (%.0f%%)",
		Processing:     "Training in progress (%.0f%%)",
		Completed:      "Training completed",
		Failed:         "Training failed: %s",
		FailedGeneric:  "unknown error",
		RetryingError:  "Status check failed, retrying (%d/%d)",
		TooManyChecks:  "Training timed out: too many status checks",
		AbortedErrors:  "aborted after repeated errors",
		ResultsFailed:  "Training completed but results could not be loaded: %s",
		RetryAvailable: "Retry training",
	},
	LangFR: {
		Pending:        "Initialisation de l'entraînement (%.0f%%)",
		Processing:     "Entraînement en cours (%.0f%%)",
		Completed:      "Entraînement terminé",
		Failed:         "Échec de l'entraînement : %s",
		FailedGeneric:  "erreur inconnue",
		RetryingError:  "Échec de la vérification du statut, nouvel essai (%d/%d)",
		TooManyChecks:  "Délai dépassé : trop de vérifications du statut",
		AbortedErrors:  "abandon après plusieurs erreurs",
		ResultsFailed:  "Entraînement terminé mais les résultats sont indisponibles : %s",
		RetryAvailable: "Relancer l'entraînement",
	},
}

// CatalogFor returns the catalog for lang, falling back to English.
func CatalogFor(lang string) Catalog {
	if c, ok := catalogs[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return c
	}
	return catalogs[LangEN]
}

// TrainingCatalogFor returns the texts used while following a model
// training run.
func TrainingCatalogFor(lang string) Catalog {
	if c, ok := trainingCatalogs[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return c
	}
	return trainingCatalogs[LangEN]
}

func (c Catalog) pending(progress float64) string {
	return fmt.Sprintf(c.Pending, progress)
}

func (c Catalog) processing(progress float64) string {
	return fmt.Sprintf(c.Processing, progress)
}

func (c Catalog) failed(reason string) string {
	if strings.TrimSpace(reason) == "" {
		reason = c.FailedGeneric
	}
	return fmt.Sprintf(c.Failed, reason)
}

func (c Catalog) retrying(errs int) string {
	return fmt.Sprintf(c.RetryingError, errs, MaxConsecutiveErrors)
}

func (c Catalog) abortedErrors(last string) string {
	if strings.TrimSpace(last) == "" {
		return c.AbortedErrors
	}
	return last + " (" + c.AbortedErrors + ")"
}

func (c Catalog) resultsFailed(err error) string {
	return fmt.Sprintf(c.ResultsFailed, err)
}

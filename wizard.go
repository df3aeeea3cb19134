package main

import (
	"errors"
	"fmt"

	"github.com/ncruces/zenity"

	"voiceassistant/pkg/credentials"
)

var envFilters = zenity.FileFilters{
	{Name: "Environment file", Patterns: []string{"*.env"}},
	{Name: "All files", Patterns: []string{"*"}},
}

// runImportWizard asks for a .env file until a valid one is imported or the
// user cancels. It reports whether credentials were saved.
func (a *app) runImportWizard() bool {
	if !a.wizardMu.TryLock() {
		return false
	}
	defer a.wizardMu.Unlock()

	for {
		path, err := zenity.SelectFile(
			zenity.Title("Choose the .env file containing API_KEY and AGENT_ID"),
			envFilters,
		)
		if errors.Is(err, zenity.ErrCanceled) {
			logger.Infof("Import cancelled")
			return false
		}
		if err != nil {
			logger.Errorf("File picker failed: %v", err)
			return false
		}

		creds, err := a.store.Import(path)
		switch {
		case err == nil:
			logger.Infof("Imported credentials for agent %s from %s", creds.AgentID, path)
			zenity.Info(fmt.Sprintf("Credentials for agent %s saved.", creds.AgentID),
				zenity.Title("Voice assistant"), zenity.InfoIcon)
			return true
		case errors.Is(err, credentials.ErrInvalidSource):
			logger.Warnf("Rejected credentials file: %v", err)
			zenity.Error(importErrorText(err), zenity.Title("Import credentials"), zenity.ErrorIcon)
		default:
			logger.Errorf("Import failed: %v", err)
			zenity.Error(importErrorText(err), zenity.Title("Import credentials"), zenity.ErrorIcon)
			return false
		}
	}
}

func importErrorText(err error) string {
	switch {
	case errors.Is(err, credentials.ErrMissingCredentials):
		return "Error: the file must define both API_KEY and AGENT_ID."
	case errors.Is(err, credentials.ErrInvalidSource):
		return fmt.Sprintf("Error: this file could not be read.\n\n%v", err)
	default:
		return fmt.Sprintf("Error: the credentials could not be saved.\n\n%v", err)
	}
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package config

import (
	"errors"
	"sync"

	"github.com/zalando/go-keyring"
)

// Service/keys for the OS keychain.
const (
	keyringService = "pagegrid"
	keyringToken   = "backend_token"
)

// TokenStore abstracts the keychain, so we can stub in tests.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keychain via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

var (
	tokenMu    sync.RWMutex
	tokenStore TokenStore = osKeyring{}
)

// SetTokenStore swaps the token backend and returns a function restoring the previous one.
func SetTokenStore(ts TokenStore) (restore func()) {
	tokenMu.Lock()
	prev := tokenStore
	tokenStore = ts
	tokenMu.Unlock()
	return func() {
		tokenMu.Lock()
		tokenStore = prev
		tokenMu.Unlock()
	}
}

func currentStore() TokenStore {
	tokenMu.RLock()
	defer tokenMu.RUnlock()
	return tokenStore
}

// LoadToken returns the stored backend token. A missing entry is not an error.
func LoadToken() (string, error) {
	tok, err := currentStore().Get(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return tok, err
}

// StoreToken saves the backend token in the keychain.
func StoreToken(token string) error {
	return currentStore().Set(keyringService, keyringToken, token)
}

// DeleteToken removes the backend token. Deleting a missing entry is not an error.
func DeleteToken() error {
	err := currentStore().Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

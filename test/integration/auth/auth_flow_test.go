// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const (
	password    = "Abcd123!"
	newPassword = "Newpass1!"
)

type body = map[string]any

func register(name, email string) {
	status, resp := call(http.MethodPost, "/register", body{"name": name, "email": email, "password": password}, "")
	Expect(status).To(Equal(http.StatusCreated), "%v", resp)
}

func login(email, pw string) string {
	status, resp := call(http.MethodPost, "/login", body{"email": email, "password": pw}, "")
	Expect(status).To(Equal(http.StatusOK), "%v", resp)
	token, _ := resp["token"].(string)
	Expect(token).NotTo(BeEmpty())
	return token
}

func resetWith(link resetLink, pw string) (int, map[string]any) {
	return call(http.MethodPost, "/reset-password/"+link.Token+"/"+link.ID,
		body{"email": link.Email, "password": pw, "password_confirmation": pw}, "")
}

var _ = Describe("Sessions", func() {
	BeforeEach(func() {
		env.truncate()
	})

	It("registers, logs in, and logs out", func() {
		register("Alice", "Alice@Example.com")

		token := login("alice@example.com", password)

		status, resp := call(http.MethodGet, "/user", nil, token)
		Expect(status).To(Equal(http.StatusOK))
		user, ok := resp["user"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(user["email"]).To(Equal("alice@example.com"))
		Expect(user).NotTo(HaveKey("password"))
		Expect(user).NotTo(HaveKey("password_hash"))

		status, _ = call(http.MethodPost, "/logout", nil, token)
		Expect(status).To(Equal(http.StatusOK))

		status, resp = call(http.MethodGet, "/user", nil, token)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(resp["message"]).To(Equal("Unauthenticated."))
	})

	It("rejects a second registration with the same email", func() {
		register("Alice", "alice@example.com")

		status, resp := call(http.MethodPost, "/register",
			body{"name": "Impostor", "email": "ALICE@example.com", "password": password}, "")
		Expect(status).To(Equal(http.StatusConflict))
		Expect(resp).To(HaveKey("errors"))
	})

	It("keeps sessions independent", func() {
		register("Alice", "alice@example.com")
		first := login("alice@example.com", password)
		second := login("alice@example.com", password)

		status, _ := call(http.MethodPost, "/logout", nil, first)
		Expect(status).To(Equal(http.StatusOK))

		status, _ = call(http.MethodGet, "/user", nil, second)
		Expect(status).To(Equal(http.StatusOK))
	})
})

var _ = Describe("Password reset", func() {
	BeforeEach(func() {
		env.truncate()
		register("Alice", "alice@example.com")
	})

	It("resets the password once and signs out old sessions", func() {
		oldSession := login("alice@example.com", password)

		status, _ := call(http.MethodPost, "/forgot-password", body{"email": "alice@example.com"}, "")
		Expect(status).To(Equal(http.StatusOK))
		link := env.outbox.last()

		status, resp := call(http.MethodGet, "/reset-password/"+link.Token, nil, "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(resp["valid"]).To(BeTrue())

		status, resp = resetWith(link, newPassword)
		Expect(status).To(Equal(http.StatusOK), "%v", resp)

		status, _ = resetWith(link, "Another1!")
		Expect(status).To(Equal(http.StatusBadRequest))

		status, _ = call(http.MethodPost, "/login", body{"email": "alice@example.com", "password": password}, "")
		Expect(status).To(Equal(http.StatusUnauthorized))
		login("alice@example.com", newPassword)

		status, _ = call(http.MethodGet, "/user", nil, oldSession)
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	It("invalidates earlier links when a new one is requested", func() {
		call(http.MethodPost, "/forgot-password", body{"email": "alice@example.com"}, "")
		first := env.outbox.last()
		call(http.MethodPost, "/forgot-password", body{"email": "alice@example.com"}, "")
		second := env.outbox.last()
		Expect(second.Token).NotTo(Equal(first.Token))

		status, resp := call(http.MethodGet, "/reset-password/"+first.Token, nil, "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(resp["valid"]).To(BeFalse())

		status, _ = resetWith(first, newPassword)
		Expect(status).To(Equal(http.StatusBadRequest))

		status, _ = resetWith(second, newPassword)
		Expect(status).To(Equal(http.StatusOK))
	})

	It("rejects a link used with another account's email", func() {
		register("Bob", "bob@example.com")
		call(http.MethodPost, "/forgot-password", body{"email": "alice@example.com"}, "")
		link := env.outbox.last()
		link.Email = "bob@example.com"

		status, resp := resetWith(link, newPassword)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(resp["message"]).To(Equal("Invalid token or email"))

		login("bob@example.com", password)
		login("alice@example.com", password)
	})

	It("lets exactly one concurrent reset consume a token", func() {
		call(http.MethodPost, "/forgot-password", body{"email": "alice@example.com"}, "")
		link := env.outbox.last()

		const attempts = 5
		statuses := make([]int, attempts)
		var wg sync.WaitGroup
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				statuses[i], _ = resetWith(link, newPassword)
			}()
		}
		wg.Wait()

		Expect(statuses).To(ContainElement(http.StatusOK))
		ok := 0
		for _, s := range statuses {
			if s == http.StatusOK {
				ok++
			} else {
				Expect(s).To(Equal(http.StatusBadRequest))
			}
		}
		Expect(ok).To(Equal(1))
	})

	It("says nothing about unknown emails", func() {
		status, resp := call(http.MethodPost, "/forgot-password", body{"email": "nobody@example.com"}, "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(resp["message"]).To(Equal("Reset link sent to email."))
	})
})

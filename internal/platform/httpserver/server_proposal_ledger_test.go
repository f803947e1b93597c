package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	proposalledger "govledger/contexts/governance/proposal-ledger"
	"govledger/contexts/governance/proposal-ledger/domain/entities"
	ledgerhttp "govledger/contexts/governance/proposal-ledger/transport/http"
	"govledger/internal/platform/auth"
)

const testSecret = "ledger-test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	verifier, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return New(
		proposalledger.NewInMemoryModule(nil, slog.Default()),
		verifier,
		slog.Default(),
		":0",
	)
}

func testIdentity(n byte) string {
	var id entities.Identity
	id[0] = 0x7A
	id[31] = n
	return id.String()
}

func bearer(t *testing.T, identity string) string {
	t.Helper()
	issuer, err := auth.NewIssuer(testSecret)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.Issue(identity, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func serve(server *Server, method string, path string, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func createProposal(t *testing.T, server *Server, author string, title string) ledgerhttp.ProposalResponse {
	t.Helper()
	rr := serve(server, http.MethodPost, "/v1/proposals", bearer(t, author), ledgerhttp.CreateProposalRequest{
		Title:          title,
		Description:    "move the treasury",
		SubjectID:      testIdentity(200),
		ExpirationTime: time.Now().UTC().Add(48 * time.Hour),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp ledgerhttp.ProposalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode proposal: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	rr := serve(server, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestCreateProposalRequiresBearerToken(t *testing.T) {
	server := newTestServer(t)
	rr := serve(server, http.MethodPost, "/v1/proposals", "", ledgerhttp.CreateProposalRequest{Title: "t"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp ledgerhttp.ErrorResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Code != "missing_token" {
		t.Fatalf("expected missing_token, got %q", resp.Code)
	}
}

func TestCreateProposalRejectsForgedToken(t *testing.T) {
	server := newTestServer(t)
	rr := serve(server, http.MethodPost, "/v1/proposals", "Bearer not-a-jwt", ledgerhttp.CreateProposalRequest{Title: "t"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateProposalRejectsLongTitle(t *testing.T) {
	server := newTestServer(t)
	title := string(bytes.Repeat([]byte("a"), entities.MaxTitleLen+1))
	rr := serve(server, http.MethodPost, "/v1/proposals", bearer(t, testIdentity(1)), ledgerhttp.CreateProposalRequest{
		Title:          title,
		SubjectID:      testIdentity(200),
		ExpirationTime: time.Now().UTC().Add(48 * time.Hour),
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateProposalTwiceConflicts(t *testing.T) {
	server := newTestServer(t)
	author := testIdentity(1)
	createProposal(t, server, author, "fund the bridge")

	rr := serve(server, http.MethodPost, "/v1/proposals", bearer(t, author), ledgerhttp.CreateProposalRequest{
		Title:          "fund the bridge",
		SubjectID:      testIdentity(200),
		ExpirationTime: time.Now().UTC().Add(48 * time.Hour),
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestVoteSwitchAndTally(t *testing.T) {
	server := newTestServer(t)
	proposal := createProposal(t, server, testIdentity(1), "fund the bridge")
	votePath := fmt.Sprintf("/v1/proposals/%s/votes", proposal.ProposalID)

	rr := serve(server, http.MethodPost, votePath, bearer(t, testIdentity(2)), ledgerhttp.VoteRequest{Direction: "yes"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = serve(server, http.MethodPost, votePath, bearer(t, testIdentity(2)), ledgerhttp.VoteRequest{Direction: "yes"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on repeated yes, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = serve(server, http.MethodPost, votePath, bearer(t, testIdentity(2)), ledgerhttp.VoteRequest{Direction: "no"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on switch, got %d body=%s", rr.Code, rr.Body.String())
	}
	var vote ledgerhttp.VoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &vote); err != nil {
		t.Fatalf("decode vote: %v", err)
	}
	if vote.BallotChange != "switched" || vote.PreviousDirection != "yes" {
		t.Fatalf("unexpected ballot change: %+v", vote)
	}
	if vote.Proposal.YesVotes != 0 || vote.Proposal.NoVotes != 1 || vote.Proposal.UniqueVoters != 1 {
		t.Fatalf("unexpected tally: %+v", vote.Proposal)
	}

	rr = serve(server, http.MethodGet, "/v1/proposals/"+proposal.ProposalID+"/ballots/"+testIdentity(2), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = serve(server, http.MethodGet, "/v1/proposals/"+proposal.ProposalID+"/ballots/"+testIdentity(3), "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing ballot, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestVoteRejectsUnknownDirection(t *testing.T) {
	server := newTestServer(t)
	proposal := createProposal(t, server, testIdentity(1), "fund the bridge")
	rr := serve(server, http.MethodPost, "/v1/proposals/"+proposal.ProposalID+"/votes", bearer(t, testIdentity(2)), ledgerhttp.VoteRequest{Direction: "maybe"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCloseProposalOnlyByAuthor(t *testing.T) {
	server := newTestServer(t)
	author := testIdentity(1)
	proposal := createProposal(t, server, author, "fund the bridge")
	closePath := "/v1/proposals/" + proposal.ProposalID + "/close"

	serve(server, http.MethodPost, "/v1/proposals/"+proposal.ProposalID+"/votes", bearer(t, testIdentity(2)), ledgerhttp.VoteRequest{Direction: "yes"})

	rr := serve(server, http.MethodPost, closePath, bearer(t, testIdentity(9)), nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = serve(server, http.MethodPost, closePath, bearer(t, author), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var closed ledgerhttp.CloseProposalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &closed); err != nil {
		t.Fatalf("decode close: %v", err)
	}
	if closed.Outcome != "yes_wins" || !closed.Proposal.Closed {
		t.Fatalf("unexpected close response: %+v", closed)
	}

	rr = serve(server, http.MethodPost, closePath, bearer(t, author), nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second close, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = serve(server, http.MethodPost, "/v1/proposals/"+proposal.ProposalID+"/votes", bearer(t, testIdentity(3)), ledgerhttp.VoteRequest{Direction: "no"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 voting on closed proposal, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetProposalNotFound(t *testing.T) {
	server := newTestServer(t)
	rr := serve(server, http.MethodGet, "/v1/proposals/"+testIdentity(77), "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = serve(server, http.MethodGet, "/v1/proposals/not-base58!", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for malformed id, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestListProposalsFiltersByAuthor(t *testing.T) {
	server := newTestServer(t)
	createProposal(t, server, testIdentity(1), "first")
	createProposal(t, server, testIdentity(1), "second")
	createProposal(t, server, testIdentity(2), "third")

	rr := serve(server, http.MethodGet, "/v1/proposals?author="+testIdentity(1)+"&status=open", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var list ledgerhttp.ProposalListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(list.Items))
	}

	rr = serve(server, http.MethodGet, "/v1/proposals?limit=-1", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", rr.Code)
	}
}

func TestInstructionDispatch(t *testing.T) {
	server := newTestServer(t)
	author := testIdentity(1)
	expiration := time.Now().UTC().Add(48 * time.Hour)

	rr := serve(server, http.MethodPost, "/v1/instructions", bearer(t, author), ledgerhttp.InstructionRequest{
		Op:             "create",
		Title:          "fund the bridge",
		SubjectID:      testIdentity(200),
		ExpirationTime: &expiration,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created ledgerhttp.InstructionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode instruction: %v", err)
	}
	if created.Proposal == nil {
		t.Fatalf("expected proposal in response: %s", rr.Body.String())
	}

	rr = serve(server, http.MethodPost, "/v1/instructions", bearer(t, testIdentity(2)), ledgerhttp.InstructionRequest{
		Op:         "vote",
		ProposalID: created.Proposal.ProposalID,
		Direction:  "no",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = serve(server, http.MethodPost, "/v1/instructions", bearer(t, author), ledgerhttp.InstructionRequest{
		Op:         "close",
		ProposalID: created.Proposal.ProposalID,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var closed ledgerhttp.InstructionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &closed); err != nil {
		t.Fatalf("decode instruction: %v", err)
	}
	if closed.Close == nil || closed.Close.Outcome != "no_wins" {
		t.Fatalf("unexpected close result: %s", rr.Body.String())
	}

	rr = serve(server, http.MethodPost, "/v1/instructions", bearer(t, author), ledgerhttp.InstructionRequest{Op: "burn"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown op, got %d body=%s", rr.Code, rr.Body.String())
	}
}

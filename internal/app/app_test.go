package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"linguatutor/internal/ratelimit"
	"linguatutor/pkg/auth"
	"linguatutor/pkg/domain"
	"linguatutor/pkg/store"
)

const testInvite = "beta-2024"

type fakeLLM struct {
	replyText    string
	replyErr     error
	translateErr error
	translated   map[string]string
	batchCalls   int
	starters     []domain.Starter
	starterErr   error
}

func (f *fakeLLM) Reply(_ context.Context, _ []domain.Message, _ string, _ domain.ConversationMode) (string, error) {
	return f.replyText, f.replyErr
}

func (f *fakeLLM) TranslateBatch(_ context.Context, texts []string, _ string) ([]string, error) {
	f.batchCalls++
	if f.translateErr != nil {
		return nil, f.translateErr
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = f.translated[t]
	}
	return out, nil
}

func (f *fakeLLM) SynthesizeStarters(_ context.Context, _ []domain.Post, _ int) ([]domain.Starter, error) {
	return f.starters, f.starterErr
}

type fakeFeed struct {
	posts []domain.Post
	err   error
}

func (f *fakeFeed) FetchAll(_ context.Context, _ []string, _ int) ([]domain.Post, error) {
	return f.posts, f.err
}

func newTestApp(t *testing.T, llm *fakeLLM, feed *fakeFeed) (*App, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	if err := st.SetSetting(store.SettingBetaInviteHash, auth.HashInviteCode(testInvite)); err != nil {
		t.Fatalf("seed invite hash: %v", err)
	}
	limiter, err := ratelimit.NewMemoryFailureLimiter(3, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	if llm == nil {
		llm = &fakeLLM{replyText: "hola"}
	}
	if feed == nil {
		feed = &fakeFeed{}
	}
	a, err := New(st, llm, feed, limiter, Config{
		SessionTTL:        time.Hour,
		RefreshCooldown:   10 * time.Minute,
		StarterCount:      3,
		StarterPreviewLen: 40,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, st
}

func register(t *testing.T, a *App, username string) (domain.User, string) {
	t.Helper()
	user, token, _, err := a.Register(RegisterInput{
		Username:   username,
		Password:   "hunter22pass",
		InviteCode: testInvite,
		ClientIP:   "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user, token
}

func TestRegisterLoginLogoutLifecycle(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)

	user, token := register(t, a, "alice")
	if user.Username != "alice" || user.DisplayName != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}

	got, _, err := a.Authenticate(token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("authenticated wrong user: %s", got.ID)
	}

	if err := a.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := a.Authenticate(token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", err)
	}
	// Idempotent.
	if err := a.Logout(token); err != nil {
		t.Fatalf("second logout: %v", err)
	}

	_, loginToken, _, err := a.Login(LoginInput{Username: "Alice", Password: "hunter22pass", ClientIP: "10.0.0.2"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loginToken == token {
		t.Fatal("expected a fresh session token per login")
	}
}

func TestAuthenticateExtendsSessionExpiry(t *testing.T) {
	a, st := newTestApp(t, nil, nil)
	_, token := register(t, a, "alice")

	// Pull the stored expiry back so the rolling extension is visible.
	sess, ok, err := st.GetSessionByTokenHash(auth.HashToken(token))
	if err != nil || !ok {
		t.Fatalf("session lookup: ok=%v err=%v", ok, err)
	}
	earlier := time.Now().UTC().Add(time.Minute)
	if err := st.ExtendSession(sess.ID, earlier); err != nil {
		t.Fatalf("shrink expiry: %v", err)
	}

	_, newExpiry, err := a.Authenticate(token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !newExpiry.After(earlier) {
		t.Fatalf("expiry not extended: %v <= %v", newExpiry, earlier)
	}
	stored, _, err := st.GetSessionByTokenHash(auth.HashToken(token))
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	if !stored.ExpiresAt.Equal(newExpiry) {
		t.Fatalf("stored expiry %v does not match returned %v", stored.ExpiresAt, newExpiry)
	}
}

func TestTranslateIdentityResult(t *testing.T) {
	llm := &fakeLLM{translated: map[string]string{"taco": "taco"}}
	a, st := newTestApp(t, llm, nil)

	got, err := a.Translate(context.Background(), []string{"taco"}, "es")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got[0] != "taco" {
		t.Fatalf("expected identity result, got %q", got[0])
	}
	if cached, ok, _ := st.GetTranslation("taco"); !ok || cached != "taco" {
		t.Fatalf("identity pair not cached: ok=%v cached=%q", ok, cached)
	}
}

func TestRegisterRejectsDuplicateUsernameCasing(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)
	register(t, a, "bob")

	_, _, _, err := a.Register(RegisterInput{
		Username:   "BOB",
		Password:   "hunter22pass",
		InviteCode: testInvite,
		ClientIP:   "10.0.0.1",
	})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegisterRejectsBadInviteAndThrottles(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)

	for i := 0; i < 3; i++ {
		_, _, _, err := a.Register(RegisterInput{
			Username:   "carol",
			Password:   "hunter22pass",
			InviteCode: "wrong",
			ClientIP:   "10.9.9.9",
		})
		if !errors.Is(err, ErrInvalidInviteCode) {
			t.Fatalf("attempt %d: expected ErrInvalidInviteCode, got %v", i, err)
		}
	}
	_, _, _, err := a.Register(RegisterInput{
		Username:   "carol",
		Password:   "hunter22pass",
		InviteCode: testInvite,
		ClientIP:   "10.9.9.9",
	})
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestLoginFailureThrottleAndReset(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)
	register(t, a, "dave")

	for i := 0; i < 2; i++ {
		if _, _, _, err := a.Login(LoginInput{Username: "dave", Password: "nope-nope", ClientIP: "1.2.3.4"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	// Success clears the counter.
	if _, _, _, err := a.Login(LoginInput{Username: "dave", Password: "hunter22pass", ClientIP: "1.2.3.4"}); err != nil {
		t.Fatalf("login after failures: %v", err)
	}
	for i := 0; i < 3; i++ {
		a.failures.RecordFailure("1.2.3.4")
	}
	if _, _, _, err := a.Login(LoginInput{Username: "dave", Password: "hunter22pass", ClientIP: "1.2.3.4"}); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)
	user, _ := register(t, a, "erin")

	name := "Erin L"
	lang := "FR "
	got, err := a.UpdateProfile(user.ID, ProfileUpdate{DisplayName: &name, PrimaryLang: &lang})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if got.DisplayName != "Erin L" || got.PreferredPrimaryLang != "fr" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	bad := "français"
	if _, err := a.UpdateProfile(user.ID, ProfileUpdate{SecondaryLang: &bad}); err == nil {
		t.Fatal("expected validation error for non-two-letter code")
	}
}

func TestChatTurnCreatesConversationAndDerivesLanguages(t *testing.T) {
	llm := &fakeLLM{replyText: "¡Hola! ¿Cómo estás?"}
	a, _ := newTestApp(t, llm, nil)
	user, _ := register(t, a, "frank")

	res, err := a.ChatTurn(context.Background(), ChatInput{Text: "hello", UserID: user.ID})
	if err != nil {
		t.Fatalf("chat turn: %v", err)
	}
	if res.Conversation.PrimaryLang != "es" || res.Conversation.SecondaryLang != "en" {
		t.Fatalf("unexpected language pair: %+v", res.Conversation)
	}
	if res.Reply.Text != "¡Hola! ¿Cómo estás?" || res.Reply.Role != domain.RoleAssistant {
		t.Fatalf("unexpected reply: %+v", res.Reply)
	}

	// Identical explicit pair forces a distinct secondary.
	res2, err := a.ChatTurn(context.Background(), ChatInput{
		Text: "hi", UserID: user.ID, PrimaryLang: "en", SecondaryLang: "en",
	})
	if err != nil {
		t.Fatalf("chat turn: %v", err)
	}
	if res2.Conversation.PrimaryLang != "en" || res2.Conversation.SecondaryLang != "es" {
		t.Fatalf("identical pair not resolved: %+v", res2.Conversation)
	}
}

func TestChatTurnOwnershipIsolation(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)
	alice, _ := register(t, a, "alice")
	mallory, _ := register(t, a, "mallory")

	res, err := a.ChatTurn(context.Background(), ChatInput{Text: "hola", UserID: alice.ID})
	if err != nil {
		t.Fatalf("chat turn: %v", err)
	}

	_, err = a.ChatTurn(context.Background(), ChatInput{
		ConversationID: res.Conversation.ID, Text: "mine now", UserID: mallory.ID,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign conversation, got %v", err)
	}
	if _, _, err := a.ConversationHistory(res.Conversation.ID, mallory.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on history, got %v", err)
	}
	if _, msgs, err := a.ConversationHistory(res.Conversation.ID, alice.ID); err != nil || len(msgs) != 2 {
		t.Fatalf("owner history: err=%v msgs=%d", err, len(msgs))
	}
}

func TestChatTurnFallsBackOnLLMError(t *testing.T) {
	llm := &fakeLLM{replyErr: errors.New("upstream down")}
	a, st := newTestApp(t, llm, nil)
	user, _ := register(t, a, "grace")

	res, err := a.ChatTurn(context.Background(), ChatInput{Text: "hello", UserID: user.ID})
	if err != nil {
		t.Fatalf("chat turn: %v", err)
	}
	if res.Reply.Text != apologyReply {
		t.Fatalf("expected apology fallback, got %q", res.Reply.Text)
	}
	msgs, err := st.ListMessages(res.Conversation.ID, 0)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected both messages persisted: err=%v n=%d", err, len(msgs))
	}
}

func TestTranslateMixedHitAndMiss(t *testing.T) {
	llm := &fakeLLM{translated: map[string]string{"dog": "perro"}}
	a, st := newTestApp(t, llm, nil)

	if err := st.SaveTranslation("cat", "gato"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if err := st.SaveTranslation("sun", "sol"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	got, err := a.Translate(context.Background(), []string{"cat", "sun", "dog"}, "es")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := []string{"gato", "sol", "perro"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("item %d: got %q want %q", i, got[i], want[i])
		}
	}
	if llm.batchCalls != 1 {
		t.Fatalf("expected one batch call, got %d", llm.batchCalls)
	}

	// The new pair is cached in both directions.
	if back, ok, _ := st.GetTranslation("perro"); !ok || back != "dog" {
		t.Fatalf("reverse lookup: ok=%v back=%q", ok, back)
	}
	if _, err := a.Translate(context.Background(), []string{"dog"}, "es"); err != nil {
		t.Fatalf("cached translate: %v", err)
	}
	if llm.batchCalls != 1 {
		t.Fatalf("expected no second batch call, got %d", llm.batchCalls)
	}
}

func TestTranslateUpstreamFailure(t *testing.T) {
	llm := &fakeLLM{translateErr: errors.New("boom")}
	a, _ := newTestApp(t, llm, nil)

	_, err := a.Translate(context.Background(), []string{"dog"}, "es")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func testPosts() []domain.Post {
	return []domain.Post{
		{Title: "Big News!", Subreddit: "news", Score: 50, URL: "https://reddit.com/a", SelfText: "something happened"},
		{Title: "big news", Subreddit: "worldnews", Score: 40, URL: "https://reddit.com/b"},
		{Title: "A cooking tip", Subreddit: "cooking", Score: 90, URL: "https://reddit.com/c"},
		{Title: "Tiny story", Subreddit: "stories", Score: 10, URL: "https://reddit.com/d"},
	}
}

func TestRefreshStartersLLMPath(t *testing.T) {
	llm := &fakeLLM{starters: []domain.Starter{
		{Title: "Topic one", Opener: "What about one?"},
		{Title: "Topic two", Opener: "What about two?"},
	}}
	feed := &fakeFeed{posts: testPosts()}
	a, _ := newTestApp(t, llm, feed)

	starters, err := a.RefreshStarters(context.Background(), "5.6.7.8")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(starters) != 2 {
		t.Fatalf("expected 2 starters, got %d", len(starters))
	}
	for i, s := range starters {
		if s.ID == "" || s.Rank != i+1 || s.Generator != domain.GeneratorLLM {
			t.Fatalf("starter %d not normalized: %+v", i, s)
		}
	}

	listed, err := a.ListStarters()
	if err != nil || len(listed) != 2 {
		t.Fatalf("list: err=%v n=%d", err, len(listed))
	}
	if _, err := a.GetStarter(starters[0].ID); err != nil {
		t.Fatalf("get starter: %v", err)
	}
	if _, err := a.GetStarter("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshStartersCooldown(t *testing.T) {
	llm := &fakeLLM{starters: []domain.Starter{{Title: "t", Opener: "o"}}}
	feed := &fakeFeed{posts: testPosts()}
	a, _ := newTestApp(t, llm, feed)

	if _, err := a.RefreshStarters(context.Background(), "5.6.7.8"); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	_, err := a.RefreshStarters(context.Background(), "5.6.7.8")
	if !errors.Is(err, ErrRefreshCooldown) {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	var cd *CooldownError
	if !errors.As(err, &cd) || cd.Remaining <= 0 || cd.Remaining > 10*time.Minute {
		t.Fatalf("unexpected remaining wait: %+v", cd)
	}

	// Another IP is not throttled.
	if _, err := a.RefreshStarters(context.Background(), "9.9.9.9"); err != nil {
		t.Fatalf("second IP refresh: %v", err)
	}
}

func TestRefreshStartersFallbackDeterminism(t *testing.T) {
	llm := &fakeLLM{starterErr: errors.New("llm down")}
	feed := &fakeFeed{posts: testPosts()}
	a, _ := newTestApp(t, llm, feed)

	starters, err := a.RefreshStarters(context.Background(), "5.6.7.8")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// Score order, duplicate "big news" collapsed: cooking (90), Big News (50), Tiny story (10).
	if len(starters) != 3 {
		t.Fatalf("expected 3 deduped starters, got %d", len(starters))
	}
	if starters[0].Title != "A cooking tip" || starters[1].Title != "Big News!" || starters[2].Title != "Tiny story" {
		t.Fatalf("unexpected ordering: %+v", starters)
	}
	for _, s := range starters {
		if s.Generator != domain.GeneratorFallback {
			t.Fatalf("expected fallback generator: %+v", s)
		}
	}
	if starters[0].Metadata["score"] != "90" {
		t.Fatalf("expected score metadata, got %+v", starters[0].Metadata)
	}
}

func TestRefreshStartersFeedFailure(t *testing.T) {
	feed := &fakeFeed{err: errors.New("reddit down")}
	a, st := newTestApp(t, nil, feed)

	_, err := a.RefreshStarters(context.Background(), "5.6.7.8")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	// No cooldown recorded on failure.
	if _, ok, _ := st.LastRefresh("5.6.7.8"); ok {
		t.Fatal("cooldown must not be recorded after a failed refresh")
	}
}

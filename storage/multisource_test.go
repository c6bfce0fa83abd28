package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/teefetch/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockKeySource implements interfaces.KeySource for testing
type MockKeySource struct {
	mock.Mock
	name string
}

func (m *MockKeySource) Fetch(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKeySource) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockKeySource) Name() string {
	return m.name
}

func (m *MockKeySource) LocationURI() string {
	return "mock:" + m.name
}

func TestMultiKeySource_Fetch(t *testing.T) {
	material := []byte("key material")
	testErr := errors.New("test error")

	tests := []struct {
		name         string
		setupMocks   func() []*MockKeySource
		expectedData []byte
		expectedErr  error
	}{
		{
			name: "first source successful",
			setupMocks: func() []*MockKeySource {
				mock1 := &MockKeySource{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything).Return(material, nil)

				// Not consulted as the first one succeeds
				mock2 := &MockKeySource{name: "mock-B"}

				return []*MockKeySource{mock1, mock2}
			},
			expectedData: material,
		},
		{
			name: "first source fails, second succeeds",
			setupMocks: func() []*MockKeySource {
				mock1 := &MockKeySource{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything).Return(nil, testErr)

				mock2 := &MockKeySource{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything).Return(material, nil)

				return []*MockKeySource{mock1, mock2}
			},
			expectedData: material,
		},
		{
			name: "unavailable sources are skipped",
			setupMocks: func() []*MockKeySource {
				mock1 := &MockKeySource{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockKeySource{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything).Return(material, nil)

				return []*MockKeySource{mock1, mock2}
			},
			expectedData: material,
		},
		{
			name: "all sources fail",
			setupMocks: func() []*MockKeySource {
				mock1 := &MockKeySource{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockKeySource{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything).Return(nil, interfaces.ErrKeyNotFound)

				return []*MockKeySource{mock1, mock2}
			},
			expectedErr: interfaces.ErrKeyNotFound,
		},
		{
			name: "no sources",
			setupMocks: func() []*MockKeySource {
				return nil
			},
			expectedErr: interfaces.ErrKeyNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := tt.setupMocks()
			var sources []interfaces.KeySource
			for _, m := range mocks {
				sources = append(sources, m)
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			multi := NewMultiKeySource(sources, logger)

			data, err := multi.Fetch(context.Background())
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedData, data)

			for _, m := range mocks {
				m.AssertExpectations(t)
			}
		})
	}
}

func TestMultiKeySource_Available(t *testing.T) {
	for name, tc := range map[string]struct {
		sources  []bool
		expected bool
	}{
		"all available":  {[]bool{true, true}, true},
		"some available": {[]bool{false, true}, true},
		"none available": {[]bool{false, false}, false},
		"no sources":     {nil, false},
	} {
		t.Run(name, func(t *testing.T) {
			var sources []interfaces.KeySource
			for _, available := range tc.sources {
				m := &MockKeySource{name: "mock"}
				m.On("Available", mock.Anything).Return(available).Maybe()
				sources = append(sources, m)
			}

			multi := NewMultiKeySource(sources, slog.New(slog.NewTextHandler(io.Discard, nil)))
			assert.Equal(t, tc.expected, multi.Available(context.Background()))
		})
	}
}

package corpus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

func TestLoadFiltersReplyRows(t *testing.T) {
	input := "id,userid,userfullname,message,parent\n" +
		"1,10,Ada,The sky is blue.,0\n" +
		"2,11,Bob,I agree,1\n" +
		"3,12,Cleo,Mine looks grey today,0\n" +
		"4,13,Dan,Same here,3\n"

	posts, err := NewCSVLoader().Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, int64(1), posts[0].ID)
	require.Equal(t, int64(3), posts[1].ID)
	require.Equal(t, "Ada", posts[0].UserFullName)
	require.Equal(t, int64(12), posts[1].UserID)
}

func TestLoadPreservesRowOrder(t *testing.T) {
	input := "id,userid,userfullname,message,parent\n" +
		"9,1,A,first,0\n" +
		"3,1,B,second,0\n" +
		"7,1,C,third,0\n"

	posts, err := NewCSVLoader().Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []int64{9, 3, 7}, []int64{posts[0].ID, posts[1].ID, posts[2].ID})
}

func TestLoadNormalizesMessageWhitespace(t *testing.T) {
	input := "id,userid,userfullname,message,parent\n" +
		"1,10,Ada,\"  The   sky\n\tis blue.  \",0\n"

	posts, err := NewCSVLoader().Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, "The sky is blue.", posts[0].Message)
}

func TestLoadHandlesFloatParentValues(t *testing.T) {
	input := "id,userid,userfullname,message,parent\n" +
		"1,10,Ada,top level,0.0\n" +
		"2,11,Bob,reply,1.0\n" +
		"3,12,Cleo,no parent cell,\n"

	posts, err := NewCSVLoader().Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, int64(1), posts[0].ID)
}

func TestLoadHeaderCaseInsensitive(t *testing.T) {
	input := "ID,UserID,UserFullName,Message,Parent\n" +
		"1,10,Ada,hello,0\n"

	posts, err := NewCSVLoader().Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, posts, 1)
}

func TestLoadMissingColumn(t *testing.T) {
	input := "id,userid,message,parent\n1,10,hello,0\n"

	_, err := NewCSVLoader().Load(strings.NewReader(input))
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "malformed_input"))
	require.Contains(t, err.Error(), "userfullname")
}

func TestLoadEmptyInput(t *testing.T) {
	_, err := NewCSVLoader().Load(strings.NewReader(""))
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "malformed_input"))
}

func TestLoadNonNumericID(t *testing.T) {
	input := "id,userid,userfullname,message,parent\nabc,10,Ada,hello,0\n"

	_, err := NewCSVLoader().Load(strings.NewReader(input))
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "malformed_input"))
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"  leading and trailing  ",
		"multiple   spaces\tand\ttabs",
		"line\nbreaks\r\neverywhere",
		"",
		"already clean",
	}
	for _, s := range inputs {
		once := Normalize(s)
		require.Equal(t, once, Normalize(once))
		require.NotContains(t, once, "  ")
		require.Equal(t, strings.TrimSpace(once), once)
	}
}
